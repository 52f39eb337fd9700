package archive_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"imgworker/internal/archive"
	"imgworker/internal/logging"
	"imgworker/internal/queue"
)

type memorySaver struct {
	objects map[string][]byte
	failOn  string
}

func (m *memorySaver) Save(_ context.Context, subdir, filename string, src io.Reader) (string, error) {
	name := subdir + "/" + filename
	if name == m.failOn {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[name] = data
	return name, nil
}

func TestVariantsNamesObjectsByIndex(t *testing.T) {
	saver := &memorySaver{failOn: "42/1.png"}
	payload := queue.Payload{
		ID:   "42",
		URLs: []string{"a.jpg", "b.png"},
		Datas: map[string][]queue.Variant{
			"a.jpg": {{Format: "jpg", Image: []byte("j")}, {Format: "webp", Image: []byte("w")}},
			"b.png": {{Format: "png", Image: []byte("p")}},
		},
	}

	stored := archive.Variants(context.Background(), saver, payload, logging.NewNop())
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored objects, got %v", stored)
	}
	if string(saver.objects["42/0.jpg"]) != "j" || string(saver.objects["42/0.webp"]) != "w" {
		t.Fatalf("unexpected objects %v", saver.objects)
	}
}

func TestVariantsWithoutSaver(t *testing.T) {
	if stored := archive.Variants(context.Background(), nil, queue.Payload{}, nil); stored != nil {
		t.Fatalf("expected nil, got %v", stored)
	}
}
