// Package cryptoutil verifies synced documentation releases: KMS-backed
// manifest signatures and sha256 digests of the files they list.
package cryptoutil
