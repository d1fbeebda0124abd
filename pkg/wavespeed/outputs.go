package wavespeed

import "strings"

// ClassifiedOutput is a derived, read-only view of a task's outputs, bucketed
// by media kind. Video and Audio hold the first matching reference; Images
// collects every match in order; Text is the first non-URL free-text output.
type ClassifiedOutput struct {
	TaskID string
	Video  string
	Images []string
	Audio  string
	Text   string
}

var (
	videoExts = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}
	imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	audioExts = []string{".mp3", ".wav", ".m4a", ".flac"}

	urlPrefixes = []string{"http://", "https://", "ftp://", "data:"}
)

// Classify buckets output references by file-extension suffix. Matching is
// case-insensitive and ignores query strings and fragments. References that
// match no known media extension and look like URLs are dropped silently;
// that is a heuristic limitation, not an error.
func Classify(taskID string, outputs []string) ClassifiedOutput {
	out := ClassifiedOutput{TaskID: taskID}
	for _, ref := range outputs {
		if ref == "" {
			continue
		}
		name := strings.ToLower(ref)
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		switch {
		case hasAnySuffix(name, videoExts):
			if out.Video == "" {
				out.Video = ref
			}
		case hasAnySuffix(name, imageExts):
			out.Images = append(out.Images, ref)
		case hasAnySuffix(name, audioExts):
			if out.Audio == "" {
				out.Audio = ref
			}
		default:
			if out.Text == "" && !looksLikeURL(ref) {
				out.Text = ref
			}
		}
	}
	return out
}

// ClassifyResult is a convenience wrapper over Classify for a poll result.
func ClassifyResult(result *TaskResult) ClassifiedOutput {
	if result == nil {
		return ClassifiedOutput{}
	}
	return Classify(result.ID, result.Outputs)
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func looksLikeURL(s string) bool {
	for _, prefix := range urlPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
