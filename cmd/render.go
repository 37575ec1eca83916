package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andresmejia3/backdrop/internal/background"
	"github.com/andresmejia3/backdrop/internal/effects"
	"github.com/andresmejia3/backdrop/internal/segment"
	"github.com/andresmejia3/backdrop/internal/store"
	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/utils"
	"github.com/andresmejia3/backdrop/internal/worker"
	"github.com/andresmejia3/backdrop/internal/yuv"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var renderOpts Options

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Composite a camera or video stream over a replacement background",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRender(cmd.Context(), renderOpts)
	},
}

func init() {
	cfg := effects.DefaultConfig(640, 480)

	renderCmd.Flags().StringVarP(&renderOpts.InputPath, "input", "i", "/dev/video0", "Capture device or video file")
	renderCmd.Flags().StringVar(&renderOpts.InputFormat, "input-format", "", "ffmpeg input format (e.g. v4l2); empty to probe")
	renderCmd.Flags().StringVarP(&renderOpts.OutputPath, "output", "o", "/dev/video9", "Loopback device or output video file")
	renderCmd.Flags().StringVar(&renderOpts.OutputFormat, "output-format", "", "ffmpeg output format (v4l2 for loopback devices)")
	renderCmd.Flags().IntVarP(&renderOpts.Width, "width", "W", cfg.Width, "Frame width (even)")
	renderCmd.Flags().IntVarP(&renderOpts.Height, "height", "H", cfg.Height, "Frame height (even)")
	renderCmd.Flags().Float64Var(&renderOpts.FPS, "fps", 30, "Frame rate for devices and the output stream")
	renderCmd.Flags().IntVar(&renderOpts.MaxFrames, "frames", 0, "Stop after this many frames (0 = until the input ends)")

	renderCmd.Flags().StringVarP(&renderOpts.Mode, "mode", "m", "blur-background", "Effect mode (see 'backdrop modes')")
	renderCmd.Flags().StringVar(&renderOpts.Model, "model", segment.Models[0].Name, "Segmentation model (see 'backdrop modes')")
	renderCmd.Flags().StringVarP(&renderOpts.Background, "background", "b", "", "Background image or .ayuv file (default $BG)")
	renderCmd.Flags().StringVar(&renderOpts.AnimationDir, "animation", "", "Directory of numbered .ayuv frames for the animated mode")
	renderCmd.Flags().IntVar(&renderOpts.AnimationLength, "animation-length", cfg.AnimationLength, "Number of frames in the animation")

	renderCmd.Flags().IntVarP(&renderOpts.NumEngines, "engines", "e", 1, "Number of parallel segmentation engines")
	renderCmd.Flags().StringVar(&renderOpts.WorkerScript, "worker-script", "python/segment_worker.py", "Path to the segmentation worker script")
	renderCmd.Flags().StringVar(&renderOpts.Python, "python", "python3", "Python interpreter for the worker")
	renderCmd.Flags().StringVar(&renderOpts.WorkerTimeout, "worker-timeout", "10s", "Timeout for an engine to segment a single frame")

	renderCmd.Flags().Float64Var(&renderOpts.SigmaMask, "sigma-mask", cfg.SigmaMask, "Blur applied to the upscaled mask")
	renderCmd.Flags().Float64Var(&renderOpts.SigmaBackground, "sigma-background", cfg.SigmaBackground, "Blur applied to backgrounds")
	renderCmd.Flags().Uint64Var(&renderOpts.SnowSeed, "seed", cfg.SnowSeed, "Seed for the snow particle field")
	renderCmd.Flags().Float64Var(&renderOpts.SnowScale, "snow-scale", cfg.SnowScale, "Background scale in the snowflakes mode")
	renderCmd.Flags().Float64Var(&renderOpts.SnowBlurScale, "snow-blur-scale", cfg.SnowBlurScale, "Background scale in the snowflakes-blur mode")

	rootCmd.AddCommand(renderCmd)
}

// frameBufferPool recycles raw frame buffers between the capture reader and the compositor.
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, 640*480*3/2) },
}

// renderPlan is the validated form of Options.
type renderPlan struct {
	mode     effects.Mode
	animated bool
	model    segment.Model
	timeout  time.Duration
}

type segmentResult struct {
	Index  int
	Data   []byte
	Tensor types.Tensor
}

type pipelineStats struct {
	Frames  int
	Compose time.Duration
}

// MeanFrameMs is the mean time spent compositing one frame.
func (s pipelineStats) MeanFrameMs() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.Compose.Microseconds()) / 1000 / float64(s.Frames)
}

func runRender(ctx context.Context, opts Options) error {
	// Create a cancellable context to ensure all child processes (FFmpeg, Python)
	// are killed immediately if this function returns early (e.g. on error).
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	plan, err := validateRenderFlags(&opts)
	if err != nil {
		return err
	}

	sess, err := newRenderSession(opts, plan)
	if err != nil {
		utils.ShowError("Failed to prepare render session", err, nil)
		return err
	}

	var engines []segment.Segmenter
	if plan.mode != effects.Bypass {
		fmt.Fprintln(os.Stderr, "🚀 Warming up engines...")
		engines, err = startEngines(ctx, opts, plan)
		if err != nil {
			return err
		}
		defer func() {
			for _, e := range engines {
				e.Close()
			}
		}()
	}

	stream := utils.StreamConfig{Width: opts.Width, Height: opts.Height, FPS: opts.FPS}
	inCfg, outCfg := stream, stream
	inCfg.Path, inCfg.Format = opts.InputPath, opts.InputFormat
	outCfg.Path, outCfg.Format = opts.OutputPath, opts.OutputFormat

	decoder := utils.NewFFmpegCapture(ctx, inCfg)
	decoderOut, err := decoder.StdoutPipe()
	if err != nil {
		utils.ShowError("Failed to create decoder pipe", err, nil)
		return err
	}
	if err := decoder.Start(); err != nil {
		utils.ShowError("Failed to start decoder", err, nil)
		return err
	}

	encoder := utils.NewFFmpegSink(ctx, outCfg)
	encoderIn, err := encoder.StdinPipe()
	if err != nil {
		utils.ShowError("Failed to create encoder pipe", err, nil)
		return err
	}
	if err := encoder.Start(); err != nil {
		utils.ShowError("Failed to start encoder", err, nil)
		return err
	}

	var barTotal int64 = int64(utils.GetTotalFrames(ctx, opts.InputPath))
	if opts.MaxFrames > 0 && (barTotal <= 0 || int64(opts.MaxFrames) < barTotal) {
		barTotal = int64(opts.MaxFrames)
	}
	if barTotal <= 0 {
		barTotal = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription("Rendering "+plan.mode.String()),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	recordStart(ctx, sess, opts, plan)

	stats, runErr := runPipeline(ctx, decoderOut, encoderIn, engines, plan.model, sess, opts.MaxFrames, bar)
	if runErr != nil {
		if errors.Is(runErr, types.ErrTensorShape) || errors.Is(runErr, types.ErrGeometry) {
			utils.ShowError("Compositing failed", runErr, nil)
		}
		recordFinish(sess, stats)
		return runErr
	}

	encoderIn.Close()
	if err := encoder.Wait(); err != nil {
		utils.ShowError("Encoder process failed", err, encoder)
		return err
	}
	if opts.MaxFrames > 0 && stats.Frames >= opts.MaxFrames {
		// We stopped reading early; the decoder is still blocked on its pipe
		decoder.Process.Kill()
		decoder.Wait()
	} else if err := decoder.Wait(); err != nil {
		utils.ShowError("Decoder process failed", err, decoder)
		return err
	}

	recordFinish(sess, stats)
	fmt.Fprintf(os.Stderr, "\n✅ Rendered %d frames (%.2f ms/frame compositing)\n", stats.Frames, stats.MeanFrameMs())
	return nil
}

// runPipeline reads raw I420 frames from src, segments them on the engines,
// composites them strictly in frame order and writes them to dst. With no
// engines every frame is composited with an empty tensor, which only the
// bypass mode accepts.
func runPipeline(ctx context.Context, src io.Reader, dst io.Writer, engines []segment.Segmenter, model segment.Model,
	sess *effects.Session, maxFrames int, bar *progressbar.ProgressBar) (pipelineStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := sess.Config()
	frameSize := yuv.FrameSize(cfg.Width, cfg.Height)
	numEngines := len(engines)
	if numEngines == 0 {
		numEngines = 1
	}

	taskChan := make(chan types.FrameTask, numEngines)
	resultsChan := make(chan segmentResult, numEngines*2)
	errChan := make(chan error, numEngines+1)

	go func() {
		defer close(taskChan)
		for idx := 0; maxFrames <= 0 || idx < maxFrames; idx++ {
			buf := frameBufferPool.Get().([]byte)
			if cap(buf) < frameSize {
				buf = make([]byte, frameSize)
			}
			buf = buf[:frameSize]

			if _, err := io.ReadFull(src, buf); err != nil {
				// EOF or unexpected error, stop reading
				frameBufferPool.Put(buf)
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					select {
					case errChan <- fmt.Errorf("failed to read frame %d: %w", idx, err):
					default:
					}
				}
				return
			}

			select {
			case taskChan <- types.FrameTask{Index: idx, Data: buf}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < numEngines; i++ {
		var eng segment.Segmenter
		if len(engines) > 0 {
			eng = engines[i]
		}
		wg.Add(1)
		go func(eng segment.Segmenter) {
			defer wg.Done()
			input := segment.NewInput(model)

			for task := range taskChan {
				res := segmentResult{Index: task.Index, Data: task.Data}
				if eng != nil {
					frame, err := yuv.NewFrame(task.Data, cfg.Width, cfg.Height)
					if err == nil {
						err = segment.FillInput(input, frame)
					}
					if err == nil {
						res.Tensor, err = eng.Segment(input)
					}
					if err != nil {
						select {
						case errChan <- fmt.Errorf("segmentation of frame %d failed: %w", task.Index, err):
						default:
						}
						return
					}
				}
				select {
				case resultsChan <- res:
				case <-ctx.Done():
					return
				}
			}
		}(eng)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var stats pipelineStats
	buffer := make(map[int]segmentResult)
	nextFrame := 0
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-errChan:
			return stats, err
		case res, ok := <-resultsChan:
			if !ok {
				// A worker may have failed right before the channel closed
				select {
				case err := <-errChan:
					return stats, err
				default:
				}
				return stats, nil
			}
			buffer[res.Index] = res

			for {
				frame, ok := buffer[nextFrame]
				if !ok {
					break
				}
				delete(buffer, nextFrame)

				start := time.Now()
				if err := sess.Process(frame.Data, frame.Tensor); err != nil {
					return stats, fmt.Errorf("frame %d: %w", nextFrame, err)
				}
				stats.Compose += time.Since(start)

				if _, err := dst.Write(frame.Data); err != nil {
					return stats, err
				}

				// Release buffer back to pool
				frameBufferPool.Put(frame.Data)

				if bar != nil {
					bar.Add(1)
				}
				stats.Frames++
				nextFrame++
			}
		}
	}
}

func newRenderSession(opts Options, plan renderPlan) (*effects.Session, error) {
	cfg := effects.DefaultConfig(opts.Width, opts.Height)
	cfg.SigmaMask = opts.SigmaMask
	cfg.SigmaBackground = opts.SigmaBackground
	cfg.SnowSeed = opts.SnowSeed
	cfg.SnowScale = opts.SnowScale
	cfg.SnowBlurScale = opts.SnowBlurScale
	cfg.AnimationLength = opts.AnimationLength

	sess, err := effects.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	if err := sess.SetMode(plan.mode); err != nil {
		return nil, err
	}

	switch {
	case plan.animated:
		frames, err := background.LoadSequence(opts.AnimationDir, cfg.AnimationLength, cfg.Width, cfg.Height)
		if err != nil {
			return nil, err
		}
		src, err := background.Animated(frames)
		if err != nil {
			return nil, err
		}
		return sess, sess.SetBackground(src)
	case plan.mode.NeedsSource():
		img, err := background.Load(opts.Background, cfg.Width, cfg.Height)
		if err != nil {
			return nil, err
		}
		src, err := background.Static(img)
		if err != nil {
			return nil, err
		}
		return sess, sess.SetBackground(src)
	}
	return sess, nil
}

func startEngines(ctx context.Context, opts Options, plan renderPlan) ([]segment.Segmenter, error) {
	engines := make([]segment.Segmenter, 0, opts.NumEngines)
	for i := 0; i < opts.NumEngines; i++ {
		w, err := worker.NewPythonSegmenter(ctx, i, worker.Config{
			Script:      opts.WorkerScript,
			Python:      opts.Python,
			Model:       plan.model,
			ReadTimeout: plan.timeout,
		})
		if err != nil {
			utils.ShowError("Engine startup failed", err, nil)
			for _, e := range engines {
				e.Close()
			}
			return nil, err
		}
		engines = append(engines, w)
	}
	return engines, nil
}

func recordStart(ctx context.Context, sess *effects.Session, opts Options, plan renderPlan) {
	if DB == nil {
		return
	}
	bg := opts.Background
	if plan.animated {
		bg = opts.AnimationDir
	}
	err := DB.StartSession(ctx, store.Session{
		ID:         sess.ID.String(),
		Mode:       plan.mode.String(),
		Model:      plan.model.Name,
		Background: bg,
		Width:      opts.Width,
		Height:     opts.Height,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "recordStart", "error": err}).Warn("Failed to record render session")
	}
}

func recordFinish(sess *effects.Session, stats pipelineStats) {
	if DB == nil {
		return
	}
	// Background context: the render context may already be cancelled by Ctrl+C
	if err := DB.FinishSession(context.Background(), sess.ID.String(), stats.Frames, stats.MeanFrameMs()); err != nil {
		logrus.WithFields(logrus.Fields{"function": "recordFinish", "error": err}).Warn("Failed to finish render session")
	}
}

func validateRenderFlags(opts *Options) (renderPlan, error) {
	var plan renderPlan

	if !utils.IsDevice(opts.InputPath) {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			if os.IsNotExist(err) {
				utils.ShowError("Input file does not exist", err, nil)
				return plan, err
			}
			utils.ShowError("Unable to access input file", err, nil)
			return plan, err
		}
		if info.IsDir() {
			err := fmt.Errorf("is a directory")
			utils.ShowError("Input path is a directory, expected a video file or device", err, nil)
			return plan, err
		}

		// Safety Check: Prevent overwriting input file which causes corruption
		inAbs, _ := filepath.Abs(opts.InputPath)
		outAbs, _ := filepath.Abs(opts.OutputPath)
		if inAbs == outAbs {
			return plan, fmt.Errorf("input and output paths must be different to prevent file corruption")
		}
	}

	if err := yuv.CheckGeometry(opts.Width, opts.Height); err != nil {
		utils.ShowError("Invalid frame size", err, nil)
		return plan, err
	}

	mode, animated, err := effects.ParseMode(opts.Mode)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return plan, err
	}
	plan.mode, plan.animated = mode, animated

	if plan.model, err = segment.LookupModel(opts.Model); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return plan, err
	}

	if animated {
		if opts.AnimationDir == "" {
			err := fmt.Errorf("the animated mode requires --animation <dir>")
			utils.ShowError("Configuration Error", err, nil)
			return plan, err
		}
		if opts.AnimationLength < 1 {
			err := fmt.Errorf("--animation-length must be at least 1, got %d", opts.AnimationLength)
			utils.ShowError("Configuration Error", err, nil)
			return plan, err
		}
	} else if mode.NeedsSource() {
		if opts.Background == "" {
			opts.Background = os.Getenv("BG")
		}
		if opts.Background == "" {
			err := fmt.Errorf("mode %s requires --background or $BG: %w", mode, types.ErrModeBackground)
			utils.ShowError("Configuration Error", err, nil)
			return plan, err
		}
	}

	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.MaxFrames < 0 {
		opts.MaxFrames = 0
	}

	if opts.SnowScale <= 0 || opts.SnowBlurScale <= 0 {
		err := fmt.Errorf("snow scales must be positive, got %g and %g", opts.SnowScale, opts.SnowBlurScale)
		utils.ShowError("Configuration Error", err, nil)
		return plan, err
	}

	if plan.timeout, err = time.ParseDuration(opts.WorkerTimeout); err != nil {
		utils.ShowError("Invalid worker-timeout format (use '10s', '1m')", err, nil)
		return plan, err
	}

	return plan, nil
}
