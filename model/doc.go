// Package model holds the declarative definitions the kernel interprets:
// pipelines with their stages, units and actions, the parameter and
// condition trees they reference, and the topic schemas they read and write.
package model
