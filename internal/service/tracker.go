package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"bitwise74/media-api/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var srcsetDescriptorRe = regexp.MustCompile(`\s+\d+(?:\.\d+)?[wx]$`)

// Tracker maintains which content embeds which media, in both directions
type Tracker struct {
	DB   *gorm.DB
	URLs *URLs

	hrefRe   *regexp.Regexp
	srcRe    *regexp.Regexp
	srcsetRe *regexp.Regexp
}

func NewTracker(db *gorm.DB, urls *URLs) *Tracker {
	l := urls.Layout
	roots := "(?:" + regexp.QuoteMeta(l.UploadsURL+"/") + "|" + regexp.QuoteMeta(l.ProtectedRoot()) + ")"

	return &Tracker{
		DB:       db,
		URLs:     urls,
		hrefRe:   regexp.MustCompile(`(?i)<a[^>]+href=['"](` + roots + `[^'"]+)['"][^>]*>`),
		srcRe:    regexp.MustCompile(`(?i)(?:src|poster)=['"](` + roots + `[^'"]+)['"]`),
		srcsetRe: regexp.MustCompile(`(?i)srcset=['"]([^'"]*)['"]`),
	}
}

// candidateURLs collects media looking URLs from markup in order of appearance
func (t *Tracker) candidateURLs(body string) []string {
	var urls []string

	for _, m := range t.hrefRe.FindAllStringSubmatch(body, -1) {
		urls = append(urls, m[1])
	}

	for _, m := range t.srcRe.FindAllStringSubmatch(body, -1) {
		urls = append(urls, m[1])
	}

	l := t.URLs.Layout
	for _, m := range t.srcsetRe.FindAllStringSubmatch(body, -1) {
		for _, part := range strings.Split(m[1], ",") {
			u := srcsetDescriptorRe.ReplaceAllString(strings.TrimSpace(part), "")
			if u == "" {
				continue
			}

			if strings.HasPrefix(u, l.UploadsURL+"/") || strings.HasPrefix(u, l.ProtectedRoot()) {
				urls = append(urls, u)
			}
		}
	}

	return urls
}

// Reference is a media id with the URLs that pointed at it
type Reference struct {
	MediaID uint
	URLs    []string
}

// ExtractReferences resolves every media URL in body. Ids are returned once,
// in order of first appearance.
func (t *Tracker) ExtractReferences(ctx context.Context, body string) []Reference {
	if body == "" {
		return nil
	}

	var refs []Reference
	index := map[uint]int{}
	seen := map[string]bool{}

	for _, u := range t.candidateURLs(body) {
		if seen[u] {
			continue
		}
		seen[u] = true

		id, ok := t.URLs.ResolveID(ctx, u)
		if !ok {
			continue
		}

		if i, ok := index[id]; ok {
			refs[i].URLs = append(refs[i].URLs, u)
			continue
		}

		index[id] = len(refs)
		refs = append(refs, Reference{MediaID: id, URLs: []string{u}})
	}

	return refs
}

func referenceIDs(refs []Reference) model.IDSet {
	ids := model.IDSet{}
	for _, r := range refs {
		ids = ids.Add(r.MediaID)
	}

	return ids
}

// OnSave repairs URLs whose shape no longer matches the referenced file's
// state, using the file's accumulated rewrite map
func (t *Tracker) OnSave(ctx context.Context, body string) string {
	refs := t.ExtractReferences(ctx, body)
	if len(refs) == 0 {
		return body
	}

	l := t.URLs.Layout
	repair := map[string]string{}

	for _, r := range refs {
		var f model.File
		err := t.DB.WithContext(ctx).
			Select("id", "restricted", "url_map").
			Where("id = ?", r.MediaID).
			First(&f).
			Error
		if err != nil {
			zap.L().Warn("Failed to load referenced media", zap.Uint("media_id", r.MediaID), zap.Error(err))
			continue
		}

		rewrites := f.URLRewrites()
		if len(rewrites) == 0 {
			continue
		}

		for _, u := range r.URLs {
			if f.Restricted == l.IsProtectedURL(u) {
				continue
			}

			for k, next := range rewrites {
				if strings.Contains(u, k) && l.IsProtectedURL(next) == f.Restricted {
					repair[k] = next
				}
			}
		}
	}

	// one pass over the whole body so a primary URL never rewrites the
	// front of its own variant URLs
	body, _ = ApplyRewrites(body, repair)
	return body
}

// IndexContent recomputes the references of a stored record and updates the
// reverse index. It returns how many media were newly linked and unlinked.
func (t *Tracker) IndexContent(ctx context.Context, c *model.Content) (added, removed int, err error) {
	next := referenceIDs(t.ExtractReferences(ctx, c.Body))
	prev := c.References
	add, rem := prev.Diff(next)

	err = t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range add {
			if err := t.link(tx, id, c.ID, true); err != nil {
				return err
			}
		}

		for _, id := range rem {
			if err := t.link(tx, id, c.ID, false); err != nil {
				return err
			}
		}

		return tx.Model(&model.Content{ID: c.ID}).UpdateColumn("referenced_ids", next).Error
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to index content %d, %w", c.ID, err)
	}

	c.References = next
	return len(add), len(rem), nil
}

// link adds or removes a content id in a media record's reverse index
func (t *Tracker) link(tx *gorm.DB, mediaID, contentID uint, add bool) error {
	var f model.File
	err := tx.Select("id", "used_in").Where("id = ?", mediaID).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}

		return err
	}

	next := f.UsedIn.Remove(contentID)
	if add {
		next = f.UsedIn.Add(contentID)
	}

	return tx.Model(&model.File{ID: mediaID}).UpdateColumn("used_in", next).Error
}

// OnContentPersisted runs after the platform stored a content record
func (t *Tracker) OnContentPersisted(ctx context.Context, contentID uint) (added, removed int, err error) {
	var c model.Content
	if err := t.DB.WithContext(ctx).Where("id = ?", contentID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, ErrContentNotFound
		}

		return 0, 0, fmt.Errorf("failed to load content, %w", err)
	}

	return t.IndexContent(ctx, &c)
}

// OnContentDeleted severs every link of a content record before it is removed
func (t *Tracker) OnContentDeleted(ctx context.Context, contentID uint) error {
	var c model.Content
	if err := t.DB.WithContext(ctx).Where("id = ?", contentID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}

		return fmt.Errorf("failed to load content, %w", err)
	}

	return t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range c.References {
			if err := t.link(tx, id, contentID, false); err != nil {
				return err
			}
		}

		return tx.Model(&model.Content{ID: contentID}).UpdateColumn("referenced_ids", model.IDSet{}).Error
	})
}

// OnMediaDeleted drops a media id from the references of every content using it
func (t *Tracker) OnMediaDeleted(ctx context.Context, f *model.File) error {
	return t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, cid := range f.UsedIn {
			var c model.Content
			err := tx.Select("id", "referenced_ids").Where("id = ?", cid).First(&c).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}

				return err
			}

			err = tx.Model(&model.Content{ID: cid}).UpdateColumn("referenced_ids", c.References.Remove(f.ID)).Error
			if err != nil {
				return err
			}
		}

		return tx.Model(&model.File{ID: f.ID}).UpdateColumn("used_in", model.IDSet{}).Error
	})
}
