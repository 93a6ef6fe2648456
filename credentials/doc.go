// Package credentials keeps username/password accounts inside a cassette
// and hands out credentials to whoever proves they know a password.
//
// Each user is a row with four columns: name, salt, hash and lock. Only the
// name is ever searched, so it is the only column that matters for the
// index; the salt and hash are there to be compared, never looked up.
//
// A wrong password does not count attempts, it simply locks the user for a
// short while (10 seconds unless configured otherwise). That is enough to
// turn an online guessing attack into something that takes longer than
// anyone would care to wait, without ever locking a legitimate user out for
// more than a few seconds.
//
// What the user gets after a successful sign-in depends on the Issuer the
// Manager was built with:
//
//   - Sessions: a long random string, the cassette keeps only its hash
//     pointing at the user row. Sessions can expire and can be revoked.
//   - Tokens: a signed token from the authority package. Nothing is stored,
//     so tokens cannot be revoked, they just run out.
//
// A deployment picks one of them and sticks with it; credentials issued by
// one are meaningless to the other.
package credentials
