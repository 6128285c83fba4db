// Package subscription tracks the content discovered for each followed
// account and moves it through its retention lifecycle.
//
// Every discovered item becomes one element of its subscription. An element
// starts active and, depending on the keep decision and its expiry, is
// unlinked, archived or deleted by periodic sweeps. Sweeps work in bounded
// batches ordered by element id and can be run any number of times.
//
// Element states:
//
//	active   -> unlinked, archived, error, duplicate
//	unlinked -> deleted, archived, error
//	error    -> active, archived
//
// deleted, archived and duplicate are final.
package subscription
