package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

// AdminTokenPayload captures the data available when minting an admin JWT.
type AdminTokenPayload struct {
	Subject string
	Role    enums.AdminRole
	JTI     string
}

// AdminClaims represents the typed JWT presented on the admin surface.
type AdminClaims struct {
	Role enums.AdminRole `json:"role"`
	jwt.RegisteredClaims
}
