package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"library-api/pkg/apierror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	req, err := Parse(url.Values{}, 10)
	require.NoError(t, err)
	assert.Equal(t, Request{Number: 1, Size: 10}, req)

	req, err = Parse(url.Values{"page": {"3"}}, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, req.Number)
	assert.Equal(t, 20, req.Offset())

	for _, bad := range []string{"0", "-1", "abc"} {
		_, err := Parse(url.Values{"page": {bad}}, 10)
		apiErr, ok := apierror.As(err)
		require.True(t, ok, bad)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, "Invalid page.", apiErr.Detail)
	}
}

func TestResolve(t *testing.T) {
	_, err := Request{Number: 1, Size: 10}.Resolve(0)
	assert.NoError(t, err)

	_, err = Request{Number: 3, Size: 10}.Resolve(21)
	assert.NoError(t, err)

	_, err = Request{Number: 4, Size: 10}.Resolve(30)
	assert.Error(t, err)

	last, err := Request{Number: -1, Size: 10}.Resolve(25)
	require.NoError(t, err)
	assert.Equal(t, 3, last.Number)
}

func TestNewBuildsLinks(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/authors?name=smith&page=2", nil)
	base := AbsoluteURL(r)

	page := New(base, Request{Number: 2, Size: 10}, 25, []int{11, 12})
	require.NotNil(t, page.Next)
	require.NotNil(t, page.Previous)
	assert.Equal(t, "http://example.com/api/v1/authors?name=smith&page=3", *page.Next)
	assert.Equal(t, "http://example.com/api/v1/authors?name=smith", *page.Previous)
	assert.Equal(t, int64(25), page.Count)
}

func TestNewFirstAndLastPage(t *testing.T) {
	base, _ := url.Parse("https://library.test/api/v1/books")

	first := New(base, Request{Number: 1, Size: 10}, 5, []string{"a"})
	assert.Nil(t, first.Next)
	assert.Nil(t, first.Previous)

	empty := New[string](base, Request{Number: 1, Size: 10}, 0, nil)
	assert.NotNil(t, empty.Results)
	assert.Empty(t, empty.Results)
}
