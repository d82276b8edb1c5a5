package api

// ExchangeCodeRequest is the body of POST /api/auth/token/exchange.
type ExchangeCodeRequest struct {
	Code  string `json:"code"`
	Nonce string `json:"nonce"`
}

// RefreshTokenRequest is the body of POST /api/auth/token/refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}
