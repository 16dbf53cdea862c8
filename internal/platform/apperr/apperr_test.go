package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("x")))
	assert.Equal(t, CodeInvalidDateRange, CodeOf(InvalidDateRange("x")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("raw sql error")))
	assert.Equal(t, CodeInternal, CodeOf(nil))

	// wrapped errors still resolve
	wrapped := fmt.Errorf("create emprunt: %w", CopiesNoLongerAvailable("x"))
	assert.Equal(t, CodeCopiesNoLongerAvailable, CodeOf(wrapped))
}

func TestToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Invalid("x"), http.StatusUnprocessableEntity},
		{InvalidDateRange("x"), http.StatusUnprocessableEntity},
		{EmptyRequest("x"), http.StatusUnprocessableEntity},
		{NoCopiesSelected("x"), http.StatusUnprocessableEntity},
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{DocumentArchived("x"), http.StatusConflict},
		{NoCopiesAvailable("x"), http.StatusConflict},
		{CopiesNoLongerAvailable("x"), http.StatusConflict},
		{CopyCurrentlyLoaned("x"), http.StatusConflict},
		{DocumentHasOpenLoans("x"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ToHTTPStatus(c.err), "status for %v", c.err)
	}
}
