// Package graphql turns the nested responses of the platform's GraphQL API
// into typed batches of tweets, retweets, users and cursors.
//
// Responses are parsed into a small sum type (Object with ordered keys,
// Array, Scalar) and walked depth first. A table keyed by __typename
// decides how each object is handled; pinned timeline entries are skipped.
package graphql
