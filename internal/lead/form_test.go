package lead

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormEditAndSubmit(t *testing.T) {
	rec, err := ParseRecord(`{"name":"Jane Doe","inquiry":"Need a quote","contact_detail":"jane@x.com"}`)
	require.NoError(t, err)

	f := NewForm()
	require.True(t, f.Load(1, rec))
	assert.Equal(t, "Jane Doe", f.Value(FieldName))
	assert.Equal(t, "Need a quote", f.Value(FieldInquiry))
	assert.Equal(t, "jane@x.com", f.Value(FieldContactDetail))

	require.NoError(t, f.Set(FieldInquiry, "Need a quote urgently"))
	out, err := f.Submit()
	require.NoError(t, err)
	assert.Equal(t, Record{
		FieldName:          "Jane Doe",
		FieldInquiry:       "Need a quote urgently",
		FieldContactDetail: "jane@x.com",
	}, out)

	_, loaded := f.Loaded()
	assert.False(t, loaded)
}

func TestFormLoadResetsOnlyForNewIdentity(t *testing.T) {
	f := NewForm()
	f.Load(1, Record{FieldName: "First", FieldInquiry: "a"})
	require.NoError(t, f.Set(FieldName, "Edited"))

	assert.False(t, f.Load(1, Record{FieldName: "First", FieldInquiry: "a"}))
	assert.Equal(t, "Edited", f.Value(FieldName))

	assert.True(t, f.Load(2, Record{FieldInquiry: "b"}))
	assert.Equal(t, "", f.Value(FieldName))
	assert.Equal(t, "b", f.Value(FieldInquiry))
	assert.Equal(t, "", f.Value(FieldContactDetail))
}

func TestFormSplitLayout(t *testing.T) {
	f := NewForm()
	f.Load(7, Record{FieldName: "Sam", FieldInquiry: "Deck", FieldEmail: "sam@example.com"})

	assert.Equal(t, LayoutSplit, f.Layout())
	assert.Equal(t, []string{FieldName, FieldInquiry, FieldEmail, FieldPhone}, f.Fields())
	assert.Equal(t, "", f.Value(FieldPhone))

	err := f.Set(FieldContactDetail, "x")
	assert.True(t, errors.Is(err, ErrUnknownField))
}

func TestFormRequiredFields(t *testing.T) {
	f := NewForm(FieldInquiry)
	f.Load(3, Record{FieldName: "Sam"})
	assert.True(t, f.Required(FieldInquiry))
	assert.False(t, f.Required(FieldName))

	_, err := f.Submit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequiredField))

	id, loaded := f.Loaded()
	assert.True(t, loaded)
	assert.Equal(t, uint64(3), id)
}

func TestFormRequiresNothingByDefault(t *testing.T) {
	f := NewForm()
	f.Load(5, Record{FieldName: "Sam"})
	assert.False(t, f.Required(FieldInquiry))

	out, err := f.Submit()
	require.NoError(t, err)
	assert.Equal(t, "Sam", out.Get(FieldName))
	assert.Equal(t, "", out.Get(FieldInquiry))
}

func TestFormCancelAndEmpty(t *testing.T) {
	f := NewForm()
	_, err := f.Submit()
	assert.True(t, errors.Is(err, ErrNoRecord))
	assert.True(t, errors.Is(f.Set(FieldName, "x"), ErrNoRecord))

	f.Load(4, Record{FieldInquiry: "x"})
	f.Cancel()
	_, loaded := f.Loaded()
	assert.False(t, loaded)
}
