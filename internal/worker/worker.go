package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/backdrop/internal/segment"
	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/utils" // Using the SafeCommand wrapper
	"github.com/sirupsen/logrus"
)

// Config describes how to launch a segmentation engine.
type Config struct {
	Script      string
	Python      string
	Model       segment.Model
	ReadTimeout time.Duration
}

// PythonSegmenter drives one Python inference process. Requests go over its
// stdin, responses come back over a dedicated pipe so that library noise on
// the child's stdout can never corrupt the stream.
type PythonSegmenter struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	reqBuf []byte
}

// deadliner is implemented by pipes that support read timeouts (*os.File).
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

func NewPythonSegmenter(ctx context.Context, id int, cfg Config) (*PythonSegmenter, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	py := utils.NewSafeCommand(ctx, python, "-u", cfg.Script,
		"--model", cfg.Model.File,
		"--width", strconv.Itoa(cfg.Model.Width),
		"--height", strconv.Itoa(cfg.Model.Height),
	)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("engine %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	logrus.WithFields(logrus.Fields{
		"function": "NewPythonSegmenter",
		"engine":   id,
		"model":    cfg.Model.Name,
	}).Info("Segmentation engine started")

	return &PythonSegmenter{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and returns the response body.
func (w *PythonSegmenter) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(deadliner); ok && w.ReadTimeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(w.ReadTimeout)); err != nil {
			return nil, err
		}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("engine %d timed out after %s", w.ID, w.ReadTimeout)
		}
		return nil, err // This is where a crashed interpreter shows up
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Segment runs inference on in and decodes the returned tensor.
// Request:  [width u32][height u32][width*height*3 float32]
// Response: [status u8] then [channels u32][floats] on success,
// or [msgLen u32][msg] on failure. All integers are big endian.
func (w *PythonSegmenter) Segment(in segment.Input) (types.Tensor, error) {
	if len(in.Data) != in.Width*in.Height*3 {
		return types.Tensor{}, fmt.Errorf("%w: input %dx%d with %d values", types.ErrTensorShape, in.Width, in.Height, len(in.Data))
	}

	need := 8 + 4*len(in.Data)
	if cap(w.reqBuf) < need {
		w.reqBuf = make([]byte, need)
	}
	req := w.reqBuf[:need]
	binary.BigEndian.PutUint32(req[0:], uint32(in.Width))
	binary.BigEndian.PutUint32(req[4:], uint32(in.Height))
	for i, v := range in.Data {
		binary.BigEndian.PutUint32(req[8+4*i:], math.Float32bits(v))
	}

	resp, err := w.Communicate(req)
	if err != nil {
		return types.Tensor{}, err
	}
	return decodeResponse(resp, in.Width, in.Height)
}

func decodeResponse(resp []byte, width, height int) (types.Tensor, error) {
	if len(resp) < 1 {
		return types.Tensor{}, fmt.Errorf("empty response from segmentation worker")
	}

	if resp[0] != 0 {
		if len(resp) < 5 {
			return types.Tensor{}, fmt.Errorf("segmentation worker error: (truncated message)")
		}
		msgLen := int(binary.BigEndian.Uint32(resp[1:5]))
		if msgLen > len(resp)-5 {
			msgLen = len(resp) - 5
		}
		return types.Tensor{}, fmt.Errorf("segmentation worker error: %s", string(resp[5:5+msgLen]))
	}

	if len(resp) < 5 {
		return types.Tensor{}, fmt.Errorf("%w: response has no channel count", types.ErrTensorShape)
	}
	kind, err := segment.KindForChannels(int(binary.BigEndian.Uint32(resp[1:5])))
	if err != nil {
		return types.Tensor{}, err
	}

	body := resp[5:]
	n := width * height * kind.Channels()
	if len(body) != 4*n {
		return types.Tensor{}, fmt.Errorf("%w: expected %d floats, got %d bytes", types.ErrTensorShape, n, len(body))
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*i:]))
	}
	return types.Tensor{Width: width, Height: height, Kind: kind, Data: data}, nil
}

func (w *PythonSegmenter) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
