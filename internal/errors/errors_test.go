package errors

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestAppErrorOptions(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("unable to open store", WithID("store.open"), WithCause(cause))

	assert.Equal(t, codes.Internal, Code(err))
	assert.Equal(t, "unable to open store: connection reset", err.Error())
	assert.True(t, Is(err, cause))
	assert.Equal(t, "[store.open] unable to open store <- connection reset", Details(err))
}

func TestCodeOfForeignErrors(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, codes.Unknown, Code(errors.New("boom")))
	assert.Equal(t, codes.FailedPrecondition, Code(NewConfigurationError("id", "bad")))
	assert.Equal(t, codes.PermissionDenied, Code(NewPermissionForbiddenError("denied", "no")))
}

func TestRootCauseFollowsChain(t *testing.T) {
	inner := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	wrapped := fmt.Errorf("level 1: %w", fmt.Errorf("level 2: %w", fmt.Errorf("level 3: %w", inner)))

	// *net.OpError unwraps further to its Err
	assert.Equal(t, "refused", RootCause(wrapped).Error())
	assert.Nil(t, RootCause(nil))
}

type diskFullError struct{ path string }

func (e *diskFullError) Error() string { return "no space left on " + e.path }

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "typed root keeps type name",
			err:  fmt.Errorf("outer: %w", fmt.Errorf("middle: %w", &diskFullError{path: "/tmp"})),
			want: "diskFullError: no space left on /tmp",
		},
		{
			name: "anonymous root renders message only",
			err:  fmt.Errorf("outer: %w", errors.New("socket closed")),
			want: "socket closed",
		},
		{
			name: "configuration error verbatim",
			err:  fmt.Errorf("run: %w", NewConfigurationError("export.config.filter_missing", "Datum filter not configured")),
			want: "Datum filter not configured",
		},
		{
			name: "authorization error verbatim",
			err:  fmt.Errorf("bulk export: %w", NewPermissionForbiddenError("export.policy.access_denied", "node 1")),
			want: "AuthError [export.policy.access_denied]: Forbidden, node 1",
		},
		{
			name: "nil",
			err:  nil,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureMessage(tt.err))
		})
	}
}

func TestAuthorizationErrorTranslate(t *testing.T) {
	err := NewPermissionForbiddenError("export.policy.access_denied", "")
	err.SetTranslationParams(map[string]any{"Node": 7})

	err.Translate(func(id string, args ...interface{}) string {
		require.Len(t, args, 1)
		return "access to node denied"
	})
	assert.Equal(t, "access to node denied", err.GetDetailedError())
	assert.True(t, IsAuthorizationMessage(err.Error()))
	assert.Contains(t, err.ToJson(), `"code":403`)

	untranslated := NewUnauthorizedError("export.policy.unknown", "")
	untranslated.Translate(nil)
	assert.Equal(t, "export.policy.unknown", untranslated.GetDetailedError())
}
