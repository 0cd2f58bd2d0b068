// Package reconcile flattens a conversation's mixed legacy and canonical
// message representations into one deduplicated, time-ordered stream. It is
// the permanent read-time compatibility layer for records written before the
// flat-message schema; there is no backfill job.
package reconcile

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/media"
	"github.com/fathima-sithara/conversation-service/internal/models"
)

// candidate is one potential output message plus the bookkeeping needed for
// dedup and deterministic ordering.
type candidate struct {
	msg       models.Message
	recordID  string
	sourceIdx int // position within its source array
	globalIdx int
}

// Messages merges canonical messages and legacy records into the canonical
// ordered timeline. responderRole names the second party of the legacy
// records (admin for support threads, coach for coaching chats); the first
// party is always the student.
//
// Malformed legacy entries are dropped silently: legacy records pre-exist
// and cannot be rejected after the fact, and omitting one historical entry
// beats failing to render history.
func Messages(conversationID string, responderRole models.Role, canonical []models.Message, legacy []models.LegacyRecord) []models.Message {
	cands := make([]candidate, 0, len(canonical)+len(legacy)*2)

	for i, m := range canonical {
		cands = append(cands, candidate{msg: m, recordID: m.ID, sourceIdx: i, globalIdx: len(cands)})
	}

	for _, rec := range legacy {
		collectRecord(&cands, conversationID, responderRole, rec)
	}

	// Dedup by (role, parent record, rounded timestamp, content): the same
	// logical reply shows up through both a legacy field and its migrated
	// array entry during a migration window, and object identity cannot
	// catch that.
	seen := make(map[string]struct{}, len(cands))
	uniq := cands[:0]
	for _, c := range cands {
		key := dedupKey(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, c)
	}

	sort.SliceStable(uniq, func(i, j int) bool {
		a, b := uniq[i], uniq[j]
		if !a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.msg.CreatedAt.Before(b.msg.CreatedAt)
		}
		if a.sourceIdx != b.sourceIdx {
			return a.sourceIdx < b.sourceIdx
		}
		if pa, pb := rolePriority(a.msg.SenderRole), rolePriority(b.msg.SenderRole); pa != pb {
			return pa < pb
		}
		return a.globalIdx < b.globalIdx
	})

	out := make([]models.Message, len(uniq))
	for i, c := range uniq {
		out[i] = c.msg
	}
	return out
}

func collectRecord(cands *[]candidate, conversationID string, responderRole models.Role, rec models.LegacyRecord) {
	// Initial message: emitted only when it actually says something. A
	// record that is purely a container for replies produces no first
	// bubble.
	if rec.Body != "" || len(rec.Attachments) > 0 {
		read := map[models.Role]bool{models.RoleStudent: true}
		readAt := map[models.Role]time.Time{}
		if rec.ReadByAdmin {
			read[responderRole] = true
		}
		add(cands, conversationID, rec.ID, 0, models.RoleStudent, rec.Body, rec.Attachments, rec.CreatedAt, rec.CreatedAt, read, readAt)
	}

	// Responder replies: prefer the migrated array, fall back to the legacy
	// single field. Both may be present at once; dedup handles the overlap,
	// so collect from every populated source.
	for i, r := range rec.Replies {
		read := map[models.Role]bool{responderRole: true}
		if r.ReadByStudent != nil && *r.ReadByStudent {
			read[models.RoleStudent] = true
		}
		add(cands, conversationID, rec.ID, i, responderRole, r.Content, r.Attachments, r.Timestamp, rec.CreatedAt, read, nil)
	}
	if rec.Reply != "" || len(rec.ReplyAttachments) > 0 {
		read := map[models.Role]bool{responderRole: true}
		if rec.ReadByStudent {
			read[models.RoleStudent] = true
		}
		add(cands, conversationID, rec.ID, 0, responderRole, rec.Reply, rec.ReplyAttachments, rec.ReplyAt, rec.CreatedAt, read, nil)
	}

	// Student replies, same drift one schema generation later.
	for i, r := range rec.StudentReplies {
		read := map[models.Role]bool{models.RoleStudent: true}
		if r.ReadByAdmin != nil && *r.ReadByAdmin {
			read[responderRole] = true
		}
		add(cands, conversationID, rec.ID, i, models.RoleStudent, r.Content, r.Attachments, r.Timestamp, rec.CreatedAt, read, nil)
	}
	if rec.StudentReply != "" || len(rec.StudentReplyAttachments) > 0 {
		read := map[models.Role]bool{models.RoleStudent: true}
		add(cands, conversationID, rec.ID, 0, models.RoleStudent, rec.StudentReply, rec.StudentReplyAttachments, rec.StudentReplyAt, rec.CreatedAt, read, nil)
	}
}

func add(cands *[]candidate, conversationID, recordID string, sourceIdx int, role models.Role, content string, urls []string, ts, fallback time.Time, read map[models.Role]bool, readAt map[models.Role]time.Time) {
	if content == "" && len(urls) == 0 {
		return
	}
	if ts.IsZero() {
		ts = fallback
	}
	if ts.IsZero() {
		// no content guard passed but nothing to order it by either
		return
	}

	var atts []models.AttachmentRef
	for _, u := range urls {
		if u == "" {
			continue
		}
		atts = append(atts, models.AttachmentRef{URL: u, Kind: media.ClassifyURL(u)})
	}

	kind := models.KindText
	for _, a := range atts {
		if a.Kind == models.MediaVoice {
			kind = models.KindVoice
		}
	}

	msg := models.Message{
		ID:             legacyID(recordID, role, ts, content),
		ConversationID: conversationID,
		SenderRole:     role,
		Content:        content,
		Attachments:    atts,
		Kind:           kind,
		CreatedAt:      ts.UTC(),
		ReadBy:         read,
		ReadAt:         readAt,
	}
	*cands = append(*cands, candidate{msg: msg, recordID: recordID, sourceIdx: sourceIdx, globalIdx: len(*cands)})
}

func dedupKey(c candidate) string {
	ts := c.msg.CreatedAt.Round(time.Second).Unix()
	return fmt.Sprintf("%s|%s|%d|%s", c.msg.SenderRole, c.recordID, ts, c.msg.Content)
}

// legacyID synthesizes a stable id for a legacy-derived message so repeated
// reconciliations emit identical output and clients can dedup across
// reconnects.
func legacyID(recordID string, role models.Role, ts time.Time, content string) string {
	h := fnv.New32a()
	h.Write([]byte(content))
	return fmt.Sprintf("legacy_%s_%s_%d_%08x", recordID, role, ts.UnixMilli(), h.Sum32())
}

func rolePriority(r models.Role) int {
	if r == models.RoleStudent {
		return 0
	}
	return 1
}
