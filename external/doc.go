// Package external delivers write-to-external actions.
//
// A Registry maps writer ids, as named by pipeline actions, to Writers.
// HTTPWriter posts the request as JSON with a personal access token or
// bearer token. ObjectWriter stores it as a JSON document in a local
// directory or an S3 bucket.
package external
