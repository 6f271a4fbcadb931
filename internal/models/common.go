package models

// Result is the uniform outcome returned by the portal service.
type Result struct {
	Success bool        `json:"success" yaml:"success"`
	Data    interface{} `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK wraps data in a successful result.
func OK(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// Fail converts err into a failed result.
func Fail(err error) Result {
	if err == nil {
		return Result{Success: false, Error: "unknown error"}
	}
	return Result{Success: false, Error: err.Error()}
}
