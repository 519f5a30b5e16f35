// Package types defines the record model, date keys, the PrimaryStore and KV
// interfaces, and the standard errors for the Daybook storage system.
package types
