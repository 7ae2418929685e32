package handle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"comic-vault/api/internal/identify"
	"comic-vault/api/internal/metadata"
	"comic-vault/api/internal/util"
)

// Identify accepts a multipart form with an "image" file and a "user_id"
// field and answers with the metadata the model extracted.
func (h *Handle) Identify(c *gin.Context) {
	if n := h.maxUpload(); n > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
	}

	var missing []string
	fh, err := c.FormFile("image")
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeDetail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit))
		return
	}
	if err != nil {
		missing = append(missing, "image")
	}
	userID, ok := c.GetPostForm("user_id")
	if !ok {
		missing = append(missing, "user_id")
	}
	if len(missing) > 0 {
		writeDetail(c, http.StatusUnprocessableEntity, "missing form field: "+strings.Join(missing, ", "))
		return
	}

	l := logger(c).WithFields(log.Fields{
		"user_id":  userID,
		"filename": fh.Filename,
		"size":     fh.Size,
	})

	data, err := readUpload(fh)
	if err != nil {
		l.WithError(err).Error("read upload")
		writeDetail(c, http.StatusInternalServerError, "Identification error: "+err.Error())
		return
	}

	l = l.WithField("mime", util.SniffMimeHTTP(data))

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	rec, err := h.svc.Identify(ctx, data)
	if err != nil {
		l.WithError(err).WithField("kind", identify.KindOf(err)).Error("identification failed")
		writeDetail(c, http.StatusInternalServerError, "Identification error: "+err.Error())
		return
	}

	title, _ := rec.String(metadata.KeyTitle)
	l.WithField("title", title).Info("identification ok")
	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"metadata": rec,
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
