package http

// Envelope wraps every JSON body the API writes.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// FieldError is one rejected request field.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}
