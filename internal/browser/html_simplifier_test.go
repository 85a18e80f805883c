package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coursePage = `<html><head><script>var x=1;</script><style>.a{}</style></head>
<body>
<!-- course sections -->
<ul>
  <li class="activity modtype_quiz" data-foo="1" onclick="go()">Quiz 1</li>
  <li class="activity modtype_quiz">Quiz 2</li>
  <li class="activity modtype_forum">Forum</li>
</ul>
<form id="login"><input type="password" id="password" value="hunter2">
<input type="submit" id="login-btn" value="Anmeldung"></form>
</body></html>`

func TestCountMatches(t *testing.T) {
	n, err := CountMatches(coursePage, ".modtype_quiz")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = CountMatches(coursePage, ".modtype_assign")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCleanHTML(t *testing.T) {
	out, err := CleanHTML(coursePage)
	require.NoError(t, err)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "course sections")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "data-foo")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `value="Anmeldung"`)
	assert.Contains(t, out, "modtype_quiz")
}
