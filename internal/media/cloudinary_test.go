package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockUploadAPI struct {
	mock.Mock
}

func (m *MockUploadAPI) Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	args := m.Called(ctx, file, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uploader.UploadResult), args.Error(1)
}

func TestEvidenceStore_KeepsOnlySuccessfulUploads(t *testing.T) {
	api := new(MockUploadAPI)
	store := &EvidenceStore{api: api, folder: "dispute-evidence/", log: zap.NewNop()}

	good := strings.NewReader("jpeg")
	bad := strings.NewReader("png")
	empty := strings.NewReader("gif")
	params := uploader.UploadParams{Folder: "dispute-evidence/b1"}

	api.On("Upload", mock.Anything, good, params).
		Return(&uploader.UploadResult{SecureURL: "https://res.cloudinary.com/x/a.jpg", PublicID: "a"}, nil)
	api.On("Upload", mock.Anything, bad, params).Return(nil, errors.New("timeout"))
	api.On("Upload", mock.Anything, empty, params).Return(&uploader.UploadResult{}, nil)

	refs, failures := store.Upload(context.Background(), "b1", []File{
		{Name: "a.jpg", Reader: good},
		{Name: "b.png", Reader: bad},
		{Name: "c.gif", Reader: empty},
	})

	assert.Equal(t, []domain.EvidenceRef{{URL: "https://res.cloudinary.com/x/a.jpg", PublicID: "a"}}, refs)
	assert.Equal(t, []Failure{{Name: "b.png", Reason: "timeout"}, {Name: "c.gif", Reason: "no url returned"}}, failures)
	api.AssertExpectations(t)
}

func TestNewEvidenceStore_RequiresURL(t *testing.T) {
	_, err := NewEvidenceStore("", "f", zap.NewNop())
	assert.Error(t, err)
}
