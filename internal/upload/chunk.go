package upload

import "imgworker/internal/queue"

// Chunk is the half-open URL index range [Start, End) sent in one request.
type Chunk struct {
	Start   int
	End     int
	Partial bool
}

// PlanChunks packs URLs in order while the attachment count stays within
// maxFiles. A chunk always carries at least one URL, and maxFiles <= 0 means
// unlimited. Payloads with an error carry no attachments and use one chunk.
func PlanChunks(payload queue.Payload, maxFiles int) []Chunk {
	total := len(payload.URLs)
	if total == 0 || payload.Error != "" || maxFiles <= 0 {
		return []Chunk{{Start: 0, End: total}}
	}

	var chunks []Chunk
	start, count := 0, 0
	for i, url := range payload.URLs {
		n := len(payload.Datas[url])
		if i > start && count+n > maxFiles {
			chunks = append(chunks, Chunk{Start: start, End: i})
			start, count = i, 0
		}
		count += n
	}
	chunks = append(chunks, Chunk{Start: start, End: total})
	for i := range chunks {
		chunks[i].Partial = chunks[i].End < total
	}
	return chunks
}
