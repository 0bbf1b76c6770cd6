package handler

const (
	errInternalServer = "Internal server error"
	errInvalidCode    = "Invalid or already used discount code"
)
