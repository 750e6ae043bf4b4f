package util

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Response is the data payload of a successful call.
type Response map[string]interface{}

// Business error codes.
const (
	CodeOK           = 0
	CodeInvalidParam = 40001
	CodeAuth         = 40101
	CodeForbidden    = 40301
	CodeNotFound     = 40401
	CodeConflict     = 40901
	CodeTooMany      = 42901
	CodeServerErr    = 50001
)

// Success writes {"success": true, "data": data}.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// Created is Success with 201.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}

// Error writes {"success": false, "code": code, "message": msg}.
func Error(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"success": false,
		"code":    code,
		"message": msg,
	})
}

// AbortError writes an error and stops the handler chain.
func AbortError(c *gin.Context, httpStatus int, code int, msg string) {
	Error(c, httpStatus, code, msg)
	c.Abort()
}

// ValidationError answers 400 with field-level messages when err comes from
// the binding validator, or a generic message otherwise.
func ValidationError(c *gin.Context, err error) {
	fields := FieldErrors(err)
	body := gin.H{
		"success": false,
		"code":    CodeInvalidParam,
		"message": "invalid parameters",
	}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	c.JSON(http.StatusBadRequest, body)
}

// FieldErrors maps validator errors to {json field: message}.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "latitude":
		return "must be a valid latitude"
	case "longitude":
		return "must be a valid longitude"
	case "username":
		return "must be 3-20 letters, digits or underscores"
	case "strongpassword":
		return "must be 8-64 characters with upper case, lower case and a digit"
	case "reportstatus":
		return "must be a valid report status"
	default:
		return "is invalid"
	}
}
