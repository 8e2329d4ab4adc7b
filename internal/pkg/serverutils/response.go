package serverutils

// ErrorBody is the failure shape of every endpoint; its absence means success.
type ErrorBody struct {
	Error string `json:"error"`
}
