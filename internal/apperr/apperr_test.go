package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	err := fmt.Errorf("create node: %w", BadRequest("invalid_parent"))

	assert.ErrorIs(t, err, ErrBadRequest)
	assert.ErrorIs(t, err, BadRequest("invalid_parent"))
	assert.NotErrorIs(t, err, BadRequest("invalid_name"))
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNotFoundUnwraps(t *testing.T) {
	cause := errors.New("row missing")
	err := NotFound(cause)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "not_found: not_found: row missing", err.Error())
}

func TestCurrentVersion(t *testing.T) {
	v, ok := CurrentVersion(fmt.Errorf("update: %w", VersionMismatch(7)))
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = CurrentVersion(BadRequest("x"))
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(Forbidden("blocked")))
	assert.Equal(t, KindRateLimited, KindOf(RateLimited()))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "bad_request", KindBadRequest.String())
}
