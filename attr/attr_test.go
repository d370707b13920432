package attr_test

import (
	"testing"

	"github.com/OpenPrinting/goipp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printcore/pappl/attr"
)

func TestAddFindIterateOrder(t *testing.T) {
	c := attr.New()
	c.Add(goipp.TagKeyword, "media", goipp.String("na_letter_8.5x11in"))
	c.Add(goipp.TagInteger, "copies", goipp.Integer(1))
	c.Add(goipp.TagKeyword, "sides", goipp.String("one-sided"))

	var order []string
	c.Iterate(func(a attr.Attribute) bool {
		order = append(order, a.Name)
		return true
	})
	assert.Equal(t, []string{"media", "copies", "sides"}, order)

	a, ok := c.Find("copies", goipp.TagInteger)
	require.True(t, ok)
	require.Len(t, a.Vals, 1)
	assert.Equal(t, goipp.Integer(1), a.Vals[0])

	_, ok = c.Find("copies", goipp.TagKeyword)
	assert.False(t, ok, "tag mismatch should fail Find")
}

func TestTypedAccessorMismatchError(t *testing.T) {
	c := attr.New()
	c.Add(goipp.TagKeyword, "media", goipp.String("na_letter_8.5x11in"))

	_, err := c.GetInteger("media")
	assert.Error(t, err, "asking for an integer out of a string attribute must error, not panic")

	s, err := c.GetString("media")
	require.NoError(t, err)
	assert.Equal(t, "na_letter_8.5x11in", s)

	_, err = c.GetString("missing")
	assert.Error(t, err)
}

func TestDeleteAndLen(t *testing.T) {
	c := attr.New()
	c.Add(goipp.TagInteger, "copies", goipp.Integer(1))
	c.Add(goipp.TagKeyword, "sides", goipp.String("one-sided"))
	require.Equal(t, 2, c.Len())

	c.Delete("copies")
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Has("copies"))
	assert.True(t, c.Has("sides"))
}

func TestSetValueReplacesInPlace(t *testing.T) {
	c := attr.New()
	c.Add(goipp.TagInteger, "job-priority", goipp.Integer(50))

	require.NoError(t, c.SetValue("job-priority", 0, goipp.Integer(75)))
	v, err := c.GetInteger("job-priority")
	require.NoError(t, err)
	assert.EqualValues(t, 75, v)

	err = c.SetValue("job-priority", 3, goipp.Integer(1))
	assert.Error(t, err, "out-of-range index must error")
}

func TestRequestedAttributesSentinelsAndGroups(t *testing.T) {
	all := attr.NewRequestedAttributes(nil)
	assert.True(t, all.IsAll())
	assert.True(t, all.Matches("anything"))

	none := attr.NewRequestedAttributes([]string{"none"})
	assert.False(t, none.Matches("printer-name"))

	explicit := attr.NewRequestedAttributes([]string{"printer-name", "job-template"})
	assert.True(t, explicit.Matches("printer-name"))
	assert.True(t, explicit.Matches("copies-default"), "job-template sentinel should expand")
	assert.False(t, explicit.Matches("printer-info"), "printer-description members must not leak in")
}

func TestToIPPFromIPPRoundTrip(t *testing.T) {
	c := attr.New()
	c.Add(goipp.TagInteger, "copies", goipp.Integer(2))
	c.Add(goipp.TagKeyword, "sides", goipp.String("two-sided-long-edge"))

	ipp := c.ToIPP()
	back := attr.FromIPP(ipp)

	copies, err := back.GetInteger("copies")
	require.NoError(t, err)
	assert.EqualValues(t, 2, copies)

	sides, err := back.GetKeyword("sides")
	require.NoError(t, err)
	assert.Equal(t, "two-sided-long-edge", sides)
}

func TestCloneIsIndependent(t *testing.T) {
	c := attr.New()
	c.Add(goipp.TagInteger, "copies", goipp.Integer(1))

	clone := c.Clone()
	require.NoError(t, clone.SetValue("copies", 0, goipp.Integer(9)))

	orig, err := c.GetInteger("copies")
	require.NoError(t, err)
	assert.EqualValues(t, 1, orig, "mutating the clone must not affect the source")
}

func TestCopyIntoRespectsFilter(t *testing.T) {
	c := attr.New()
	c.Add(goipp.TagInteger, "copies", goipp.Integer(1))
	c.Add(goipp.TagKeyword, "sides", goipp.String("one-sided"))

	filter := attr.NewRequestedAttributes([]string{"copies"})
	var dest goipp.Attributes
	c.CopyInto(&dest, filter, nil)

	require.Len(t, dest, 1)
	assert.Equal(t, "copies", dest[0].Name)
}
