// Package auth protects the NeoBin maintenance API.
//
// There is one operator account. Its password is stored as an Argon2id PHC
// string in config (security.api_password_hash, produced by
// `neobin hash-password`). A successful login returns a short-lived HS256
// JWT that the API checks by signature alone.
//
// This is separate from the BLE session credential, which is a fixed
// shared secret compared in constant time by the lid package.
package auth
