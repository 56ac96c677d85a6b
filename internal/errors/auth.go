package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/i18n"
)

// AuthErrorMarker prefixes every authorization error message so that a failed job
// can be told apart from other failures by its message alone.
const AuthErrorMarker = "AuthError ["

type AuthError interface {
	SetTranslationParams(map[string]any) AuthError
	GetTranslationParams() map[string]any
	SetStatusCode(int) AuthError
	GetStatusCode() int
	SetDetailedError(string)
	GetDetailedError() string
	GetId() string

	Error() string
	Translate(goi18n.TranslateFunc)
	ToJson() string
}

type AuthorizationError struct {
	params        map[string]any
	Id            string `json:"id"`
	Status        string `json:"status"`
	DetailedError string `json:"detail"`
	StatusCode    int    `json:"code,omitempty"`
}

func (err *AuthorizationError) SetTranslationParams(params map[string]any) AuthError {
	err.params = params
	return err
}

func (err *AuthorizationError) GetTranslationParams() map[string]any {
	return err.params
}

func (err *AuthorizationError) SetStatusCode(code int) AuthError {
	err.StatusCode = code
	err.Status = http.StatusText(err.StatusCode)
	return err
}

func (err *AuthorizationError) GetStatusCode() int {
	return err.StatusCode
}

func (err *AuthorizationError) Error() string {
	return fmt.Sprintf("%s%s]: %s, %s", AuthErrorMarker, err.Id, err.Status, err.DetailedError)
}

func (err *AuthorizationError) SetDetailedError(details string) {
	err.DetailedError = details
}

func (err *AuthorizationError) GetDetailedError() string {
	return err.DetailedError
}

// Translate replaces the detail with the localized text for the error id, when one exists.
func (err *AuthorizationError) Translate(T goi18n.TranslateFunc) {
	if T == nil {
		if err.DetailedError == "" {
			err.DetailedError = err.Id
		}
		return
	}

	var errText string
	if err.params == nil {
		errText = T(err.Id)
	} else {
		errText = T(err.Id, err.params)
	}

	if errText != err.Id {
		err.DetailedError = errText
	}
}

func (err *AuthorizationError) GetId() string {
	return err.Id
}

func (err *AuthorizationError) ToJson() string {
	b, _ := json.Marshal(err)
	return string(b)
}

func NewUnauthorizedError(id, details string) AuthError {
	return newAuthError(id, details).SetStatusCode(http.StatusUnauthorized)
}

func NewPermissionForbiddenError(id, details string) AuthError {
	return newAuthError(id, details).SetStatusCode(http.StatusForbidden)
}

func newAuthError(id string, details string) AuthError {
	return &AuthorizationError{Id: id, Status: id, DetailedError: details}
}

// IsAuthorizationMessage reports whether a persisted failure message came from an authorization error.
func IsAuthorizationMessage(msg string) bool {
	return strings.HasPrefix(msg, AuthErrorMarker)
}
