// Package auth turns credentials into identities.
//
// It holds the pieces every authenticated request goes through:
//   - Codec issues and verifies HS256 session credentials
//   - SessionRepository records issued credentials so logout can revoke them
//   - UserRepository stores accounts with Argon2id password hashes
//   - Resolver combines the three into a verified *User
//
// Credentials reach the server in the "jwt" cookie or an
// "Authorization: Bearer" header. Only the SHA-256 of a credential is
// ever written to storage.
package auth
