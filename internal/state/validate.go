package state

import (
	"strings"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/validation"
)

func checkInput(in any, labels map[string]string) error {
	return validation.Check(in, labels)
}

// checkText trims and validates comment or reply text.
func checkText(label, text string) (string, error) {
	in := models.TextInput{Text: strings.TrimSpace(text)}
	if err := checkInput(in, map[string]string{"Text": label}); err != nil {
		return "", err
	}
	return in.Text, nil
}

func trimPatch(p models.PostPatch) models.PostPatch {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
	}
	if p.Content != nil {
		c := strings.TrimSpace(*p.Content)
		p.Content = &c
	}
	return p
}
