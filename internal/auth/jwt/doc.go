// Package jwt verifies bearer credentials and extracts the caller identity.
//
// Signatures are checked with github.com/lestrrat-go/jwx/v2 against a single
// configured key: the shared secret for HS256/HS384/HS512, or a PEM public
// key for the asymmetric algorithms. A token is accepted only when its
// header names the configured algorithm, the signature verifies, it carries
// an exp claim that has not passed and a non-empty sub claim.
//
//	verifier, err := jwt.NewVerifier(jwt.Config{
//	    Algorithm: "HS256",
//	    Secret:    []byte("jobs2025"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	identity, err := verifier.Verify(ctx, r.Header.Get("Authorization"))
//	if err != nil {
//	    // errors.Is(err, util.ErrUnauthenticated) holds for every failure
//	}
package jwt
