// Package secret hashes short-lived secrets (one-time codes) with Argon2id.
//
// Digests use the PHC string form
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// so parameters can be raised later without invalidating codes already issued.
// Digests are treated as untrusted input on Matches: malformed strings and
// parameters far above the configured cost are refused.
package secret
