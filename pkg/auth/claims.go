package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tijarahq/tijara-backend/pkg/enums"
)

// AccessTokenPayload is what callers provide when minting a token.
type AccessTokenPayload struct {
	UserID     uuid.UUID
	Role       enums.ActorRole
	SupplierID *uuid.UUID
	JTI        string
}

// AccessTokenClaims is the JWT claim set carried by an access token.
// SupplierID is present only for supplier-side actors.
type AccessTokenClaims struct {
	UserID     uuid.UUID       `json:"uid"`
	Role       enums.ActorRole `json:"role"`
	SupplierID *uuid.UUID      `json:"supplier_id,omitempty"`
	jwt.RegisteredClaims
}
