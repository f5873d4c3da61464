package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"aichat/internal/config"
	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/service/extract"
)

// fileContextSystemPrompt tells the model how to treat injected attachment
// blocks. It leads every upstream message list.
const fileContextSystemPrompt = "User messages may contain one or more attachment blocks, " +
	"each starting with a line of the form [Attachment: file name] followed by text extracted " +
	"from an uploaded document (PDF, DOCX, TXT and similar). Answer directly from that text. " +
	"Never claim you cannot access or read attachments; if a block is marked truncated or empty, " +
	"say so and ask the user for more. If no attachment block is present but the user says they " +
	"uploaded a file, ask them to resend the message with the attachment, or explain that the " +
	"file may be scanned or encrypted so no text could be extracted."

// Attachment placeholder blocks. Extraction problems degrade to these
// instead of failing the whole turn.
const (
	placeholderNoText = "[No readable text could be extracted from this attachment. " +
		"It may be a scanned or image-only PDF, an encrypted document, or an unsupported format.]"
	placeholderFullyRead = "[Fully read: this attachment has no more content to continue from.]"
	placeholderFailed    = "[Extraction failed: the attachment could not be read. " +
		"Try a text-based PDF or DOCX, or paste the key passages directly.]"
	truncationMarker = "\n\n[content truncated]"
)

var (
	fileLinkPattern = regexp.MustCompile(`/api/files/([0-9a-fA-F-]{36})/(?:raw|download)`)

	// Lines that are nothing but a markdown image or link pointing at an
	// uploaded file. These are display markup, not model input.
	fileImageLine = regexp.MustCompile(`^!\[[^\]]*\]\(/api/files/[0-9a-fA-F-]{36}/(?:raw|download)\)$`)
	fileLinkLine  = regexp.MustCompile(`^\[[^\]]+\]\(/api/files/[0-9a-fA-F-]{36}/(?:raw|download)\)$`)
)

// extractFileIDs returns the distinct uploaded-file ids referenced by
// file links in a text, in first-seen order.
func extractFileIDs(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range fileLinkPattern.FindAllStringSubmatch(text, -1) {
		id := strings.ToLower(m[1])
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// stripFileMarkdownLines removes lines that carry only attachment markup,
// leaving the user's actual words.
func stripFileMarkdownLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if fileImageLine.MatchString(trimmed) || fileLinkLine.MatchString(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// attachmentSummaryLine renders a short natural-language note naming the
// attached files, capped to keep the context small.
func attachmentSummaryLine(names []string) string {
	var kept []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		kept = append(kept, n)
		if len(kept) == config.MaxAttachmentNamesInSummary {
			break
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return "User uploaded attachments: " + strings.Join(kept, ", ")
}

func limitIDs(ids []string) []string {
	if len(ids) > config.MaxAttachmentIDsPerRequest {
		return ids[:config.MaxAttachmentIDsPerRequest]
	}
	return ids
}

// attachmentSummary resolves file ids to a summary line covering the
// non-image attachments. Image semantics travel as multimodal parts instead.
func (s *Service) attachmentSummary(ctx context.Context, userID string, fileIDs []string) (string, error) {
	if len(fileIDs) == 0 {
		return "", nil
	}

	rows, err := s.files.ListByIDs(ctx, limitIDs(fileIDs), userID)
	if err != nil {
		return "", fmt.Errorf("resolve attachments: %w", err)
	}

	var names []string
	for _, f := range rows {
		if !f.IsImage() {
			names = append(names, f.OriginalName)
		}
	}
	return attachmentSummaryLine(names), nil
}

// imageParts resolves file ids to base64-inlined image content parts,
// enforcing the combined byte-size ceiling.
func (s *Service) imageParts(ctx context.Context, userID string, fileIDs []string) ([]models.ContentPart, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}

	rows, err := s.files.ListByIDs(ctx, limitIDs(fileIDs), userID)
	if err != nil {
		return nil, fmt.Errorf("resolve image attachments: %w", err)
	}

	var images []models.UploadedFile
	var totalBytes int64
	for _, f := range rows {
		if f.IsImage() {
			images = append(images, f)
			totalBytes += f.SizeBytes
		}
	}
	if len(images) == 0 {
		return nil, nil
	}

	// Base64 inflates payloads, so the ceiling applies to raw bytes before
	// encoding.
	if totalBytes > s.cfg.MaxImageBytes {
		return nil, domain.ImageTooLarge("combined image size is too large; remove or compress images and retry")
	}

	parts := make([]models.ContentPart, 0, len(images))
	for _, f := range images {
		data, err := s.blobs.Read(f.StoredName)
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", f.ID, err)
		}
		dataURL := "data:" + f.Mime + ";base64," + base64.StdEncoding.EncodeToString(data)
		parts = append(parts, models.ImagePart(dataURL))
	}
	return parts, nil
}

// resolveContinueTargets picks the files a "continue reading" turn should
// resume, by priority: explicit ids, then the conversation's most recently
// updated cursor, then file links in recent user messages.
func (s *Service) resolveContinueTargets(ctx context.Context, userID, conversationID string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}

	cursor, err := s.cursors.Latest(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		return []string{cursor.FileID}, nil
	}

	history, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	scanned := 0
	for i := len(history) - 1; i >= 0 && scanned < config.ContinueScanMessageCount; i-- {
		if history[i].Role != models.RoleUser {
			continue
		}
		scanned++
		if ids := extractFileIDs(history[i].Content); len(ids) > 0 {
			return ids, nil
		}
	}

	return nil, nil
}

// textAttachmentBlock extracts and assembles the text-attachment context for
// one turn, advancing per-file read cursors. Per-file extraction failures
// become placeholder blocks; cursor writes are best-effort.
func (s *Service) textAttachmentBlock(ctx context.Context, userID, conversationID string, fileIDs []string, isContinue bool) (string, error) {
	ids := fileIDs
	if isContinue {
		resolved, err := s.resolveContinueTargets(ctx, userID, conversationID, fileIDs)
		if err != nil {
			return "", err
		}
		ids = resolved
	}

	if len(ids) == 0 {
		if isContinue {
			return "", domain.NoContinueFile("nothing to continue from: send a message with a PDF/DOCX/TXT attachment first, or reattach the file")
		}
		return "", nil
	}

	rows, err := s.files.ListByIDs(ctx, limitIDs(ids), userID)
	if err != nil {
		return "", fmt.Errorf("resolve text attachments: %w", err)
	}

	var candidates []models.UploadedFile
	for _, f := range rows {
		if f.IsImage() {
			continue
		}
		candidates = append(candidates, f)
		if len(candidates) == s.cfg.MaxTextAttachments {
			break
		}
	}

	remaining := s.cfg.MaxAttachmentChars
	var blocks []string
	for _, f := range candidates {
		if remaining <= 0 {
			break
		}
		block := s.readAttachmentChunk(ctx, userID, conversationID, &f, isContinue, &remaining)
		blocks = append(blocks, block)
	}

	return strings.Join(blocks, "\n\n"), nil
}

// readAttachmentChunk extracts one file, slices the next chunk according to
// the cursor and the budgets, and persists the advanced cursor. remaining is
// decremented by the characters actually consumed.
func (s *Service) readAttachmentChunk(ctx context.Context, userID, conversationID string, f *models.UploadedFile, isContinue bool, remaining *int) string {
	header := "[Attachment: " + f.OriginalName + "]\n"

	data, err := s.blobs.Read(f.StoredName)
	if err != nil {
		s.logger.Warn("attachment read failed", "file_id", f.ID, "error", err)
		return header + placeholderFailed
	}

	raw, err := extract.Text(data, f.Mime, f.OriginalName)
	if err != nil {
		s.logger.Warn("attachment extraction failed", "file_id", f.ID, "error", err)
		return header + placeholderFailed
	}

	allText := extract.Normalize(raw)
	if allText == "" {
		return header + placeholderNoText
	}

	start := 0
	if isContinue {
		cursor, err := s.cursors.Get(ctx, conversationID, f.ID)
		if err != nil {
			s.logger.Warn("cursor lookup failed", "file_id", f.ID, "error", err)
		} else if cursor != nil {
			start = cursor.Offset
		}
	}
	if start > len(allText) {
		start = len(allText)
	}

	chunkLen := s.cfg.MaxCharsPerFile
	if chunkLen > *remaining {
		chunkLen = *remaining
	}
	end := start + chunkLen
	if end > len(allText) {
		end = len(allText)
	}
	// Cursors are byte offsets, so back an interior cut off to a rune
	// boundary rather than splitting a multi-byte character across chunks.
	// A budget smaller than one rune keeps the split so progress is made.
	aligned := end
	for aligned > start && aligned < len(allText) && !utf8.RuneStart(allText[aligned]) {
		aligned--
	}
	if aligned > start {
		end = aligned
	}
	chunk := allText[start:end]

	if chunk == "" {
		s.upsertCursor(ctx, userID, conversationID, f.ID, len(allText))
		return header + placeholderFullyRead
	}

	s.upsertCursor(ctx, userID, conversationID, f.ID, end)

	out := chunk
	if end < len(allText) {
		out += truncationMarker
	}
	*remaining -= len(out)
	return header + out
}

func (s *Service) upsertCursor(ctx context.Context, userID, conversationID, fileID string, offset int) {
	err := s.cursors.Upsert(ctx, &models.FileReadCursor{
		ConversationID: conversationID,
		FileID:         fileID,
		UserID:         userID,
		Offset:         offset,
	})
	if err != nil {
		s.logger.Warn("cursor upsert failed", "file_id", fileID, "error", err)
	}
}

// historyMessages maps stored conversation history to upstream chat
// messages. User turns get their attachment markup stripped; when nothing
// but markup remains, a short attachment-name summary stands in so the turn
// is not silently empty.
func (s *Service) historyMessages(ctx context.Context, userID string, history []models.Message) []models.ChatMessage {
	var linkedIDs []string
	seen := make(map[string]struct{})
	for _, m := range history {
		if m.Role != models.RoleUser {
			continue
		}
		for _, id := range extractFileIDs(m.Content) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			linkedIDs = append(linkedIDs, id)
		}
	}

	nameByID := make(map[string]string)
	if len(linkedIDs) > 0 {
		rows, err := s.files.ListByIDs(ctx, linkedIDs, userID)
		if err != nil {
			s.logger.Warn("history attachment lookup failed", "error", err)
		} else {
			for _, f := range rows {
				nameByID[f.ID] = f.OriginalName
			}
		}
	}

	out := make([]models.ChatMessage, 0, len(history))
	for _, m := range history {
		content := m.Content
		if m.Role == models.RoleUser {
			stripped := stripFileMarkdownLines(content)
			if stripped == "" {
				var names []string
				for _, id := range extractFileIDs(content) {
					if name, ok := nameByID[id]; ok {
						names = append(names, name)
					}
				}
				stripped = attachmentSummaryLine(names)
			}
			content = stripped
		}
		out = append(out, models.TextMessage(m.Role, content))
	}
	return out
}
