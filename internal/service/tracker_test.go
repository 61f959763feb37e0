package service

import (
	"testing"

	"bitwise74/media-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractReferences(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 1, "2024/03/a.jpg", "a-150x150.jpg")
	e.seedFile(t, 2, "2024/03/b.png")
	e.seedFile(t, 3, "2024/03/c.jpg")

	_, err := e.Engine.Protect(e.ctx, 3, TransitionOptions{})
	require.NoError(t, err)
	h := e.file(t, 3).Hash()

	body := `<a href="` + uploadsURL + `/2024/03/a.jpg">` +
		`<img src="` + uploadsURL + `/2024/03/a-150x150.jpg" ` +
		`srcset="` + uploadsURL + `/2024/03/a-150x150.jpg 150w, ` + uploadsURL + `/2024/03/b.png 2000w"></a>` +
		`<img src="` + siteURL + `/protected-files/` + h + `">` +
		`<img src="` + uploadsURL + `/2024/03/missing.jpg">` +
		`<img src="https://other.example.org/x.jpg">`

	refs := e.Tracker.ExtractReferences(e.ctx, body)
	require.Len(t, refs, 3)

	assert.EqualValues(t, 1, refs[0].MediaID)
	assert.EqualValues(t, 3, refs[1].MediaID)
	assert.EqualValues(t, 2, refs[2].MediaID)
	assert.ElementsMatch(t, []string{
		uploadsURL + "/2024/03/a.jpg",
		uploadsURL + "/2024/03/a-150x150.jpg",
	}, refs[0].URLs)
}

func TestExtractReferencesEmpty(t *testing.T) {
	e := newEnv(t)

	assert.Empty(t, e.Tracker.ExtractReferences(e.ctx, ""))
	assert.Empty(t, e.Tracker.ExtractReferences(e.ctx, "<p>no media here</p>"))
}

func TestOnContentPersistedKeepsBothSidesInStep(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 1, "2024/03/a.jpg")
	e.seedFile(t, 2, "2024/03/b.jpg")
	e.seedFile(t, 3, "2024/03/c.jpg")

	c := e.seedContent(t, `<img src="`+uploadsURL+`/2024/03/a.jpg"><img src="`+uploadsURL+`/2024/03/b.jpg">`)

	added, removed, err := e.Tracker.OnContentPersisted(e.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, removed)
	assert.Equal(t, model.IDSet{1, 2}, e.content(t, c.ID).References)

	require.NoError(t, e.DB.Model(c).Update("body", `<img src="`+uploadsURL+`/2024/03/b.jpg"><img src="`+uploadsURL+`/2024/03/c.jpg">`).Error)

	added, removed, err = e.Tracker.OnContentPersisted(e.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)

	assert.Equal(t, model.IDSet{2, 3}, e.content(t, c.ID).References)
	assert.False(t, e.file(t, 1).UsedIn.Contains(c.ID))
	assert.True(t, e.file(t, 2).UsedIn.Contains(c.ID))
	assert.True(t, e.file(t, 3).UsedIn.Contains(c.ID))

	// unchanged body is a no-op
	added, removed, err = e.Tracker.OnContentPersisted(e.ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, removed)
	assert.Equal(t, model.IDSet{c.ID}, e.file(t, 2).UsedIn)
}

func TestOnContentPersistedUnknownContent(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.Tracker.OnContentPersisted(e.ctx, 99)
	assert.ErrorIs(t, err, ErrContentNotFound)
}

func TestOnContentDeleted(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 1, "2024/03/a.jpg")

	c1 := e.seedContent(t, `<img src="`+uploadsURL+`/2024/03/a.jpg">`)
	c2 := e.seedContent(t, `<img src="`+uploadsURL+`/2024/03/a.jpg">`)

	for _, c := range []*model.Content{c1, c2} {
		_, _, err := e.Tracker.OnContentPersisted(e.ctx, c.ID)
		require.NoError(t, err)
	}
	require.Equal(t, model.IDSet{c1.ID, c2.ID}, e.file(t, 1).UsedIn)

	require.NoError(t, e.Tracker.OnContentDeleted(e.ctx, c1.ID))

	assert.Equal(t, model.IDSet{c2.ID}, e.file(t, 1).UsedIn)
	assert.Empty(t, e.content(t, c1.ID).References)

	// already gone
	assert.NoError(t, e.Tracker.OnContentDeleted(e.ctx, 1234))
}

func TestOnMediaDeleted(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 1, "2024/03/a.jpg")
	e.seedFile(t, 2, "2024/03/b.jpg")

	c := e.seedContent(t, `<img src="`+uploadsURL+`/2024/03/a.jpg"><img src="`+uploadsURL+`/2024/03/b.jpg">`)
	_, _, err := e.Tracker.OnContentPersisted(e.ctx, c.ID)
	require.NoError(t, err)

	require.NoError(t, e.Tracker.OnMediaDeleted(e.ctx, e.file(t, 1)))

	assert.Equal(t, model.IDSet{2}, e.content(t, c.ID).References)
	assert.Empty(t, e.file(t, 1).UsedIn)
}

func TestOnSaveRepairsStaleURLs(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 1, "2024/03/a.jpg", "a-150x150.jpg")

	_, err := e.Engine.Protect(e.ctx, 1, TransitionOptions{})
	require.NoError(t, err)
	h := e.file(t, 1).Hash()

	stale := `<img src="` + uploadsURL + `/2024/03/a.jpg" srcset="` + uploadsURL + `/2024/03/a-150x150.jpg 150w">`
	got := e.Tracker.OnSave(e.ctx, stale)

	assert.NotContains(t, got, uploadsURL)
	assert.Contains(t, got, `src="`+siteURL+`/protected-files/`+h+`"`)
	assert.Contains(t, got, siteURL+"/protected-files/"+h+"-150x150 150w")

	// current URLs are left alone
	assert.Equal(t, got, e.Tracker.OnSave(e.ctx, got))
}

func TestOnSaveRepairsAfterUnprotect(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 1, "2024/03/a.jpg")

	_, err := e.Engine.Protect(e.ctx, 1, TransitionOptions{})
	require.NoError(t, err)
	h := e.file(t, 1).Hash()

	_, err = e.Engine.Unprotect(e.ctx, 1, TransitionOptions{})
	require.NoError(t, err)

	got := e.Tracker.OnSave(e.ctx, `<img src="`+siteURL+`/protected-files/`+h+`">`)
	assert.Equal(t, `<img src="`+uploadsURL+`/2024/03/a.jpg">`, got)
}

func TestOnSaveKeepsVariantLinksIntact(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 1, "2024/03/photo.jpg", "photo-150x150.jpg")

	_, err := e.Engine.Protect(e.ctx, 1, TransitionOptions{})
	require.NoError(t, err)
	h := e.file(t, 1).Hash()

	_, err = e.Engine.Unprotect(e.ctx, 1, TransitionOptions{})
	require.NoError(t, err)

	prot := siteURL + "/protected-files/" + h
	body := `<a href="` + prot + `"><img src="` + prot + `-150x150"></a>`

	got := e.Tracker.OnSave(e.ctx, body)
	assert.Equal(t, `<a href="`+uploadsURL+`/2024/03/photo.jpg"><img src="`+uploadsURL+`/2024/03/photo-150x150.jpg"></a>`, got)
}
