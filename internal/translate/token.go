package translate

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-clinic-api/internal/apperr"
)

const (
	msgTokenExpired = "Token expirado"
	msgTokenInvalid = "Token inválido"
)

// tokenInvalid lists the jwt verification failures reported as "invalid".
var tokenInvalid = []error{
	jwt.ErrTokenMalformed,
	jwt.ErrTokenUnverifiable,
	jwt.ErrTokenSignatureInvalid,
	jwt.ErrSignatureInvalid,
	jwt.ErrTokenRequiredClaimMissing,
	jwt.ErrTokenInvalidAudience,
	jwt.ErrTokenUsedBeforeIssued,
	jwt.ErrTokenInvalidIssuer,
	jwt.ErrTokenInvalidSubject,
	jwt.ErrTokenNotValidYet,
	jwt.ErrTokenInvalidId,
	jwt.ErrTokenInvalidClaims,
	jwt.ErrInvalidType,
}

// Token translates JWT verification failures into 401 errors.
type Token struct{}

// Translate implements Translator.
func (Token) Translate(err error) error {
	if claimed(err) {
		return err
	}
	// Expiry is checked first: jwt joins it with ErrTokenInvalidClaims.
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperr.Unauthorized(msgTokenExpired).WithCause(err)
	}
	for _, s := range tokenInvalid {
		if errors.Is(err, s) {
			return apperr.Unauthorized(msgTokenInvalid).WithCause(err)
		}
	}
	return err
}
