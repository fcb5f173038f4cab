package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-contrib/expvar"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/johbar/ocrlib/internal/imageload"
	"github.com/johbar/ocrlib/internal/ocr"
	"github.com/johbar/ocrlib/pkg/tesswrap"
	sloggin "github.com/samber/slog-gin"
)

var validate = validator.New()

type OpenParams struct {
	Lang   string `form:"lang" json:"lang"`
	PSM    *int   `form:"psm" json:"psm" validate:"omitempty,min=0,max=13"`
	Preset string `form:"preset" json:"preset"`
}

type RectParams struct {
	Left   int `json:"left" validate:"min=0"`
	Top    int `json:"top" validate:"min=0"`
	Width  int `json:"width" validate:"min=1"`
	Height int `json:"height" validate:"min=1"`
}

type PSMParams struct {
	PSM int `json:"psm" validate:"min=0,max=13"`
}

// Router returns the HTTP handler of the service.
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(sloggin.New(s.log), gin.Recovery())
	router.POST("/ocr", s.recognizeBody)
	router.GET("/languages", s.listLanguages)
	router.GET("/languages/:lang/shards", s.shardCount)
	router.GET("/debug/vars", expvar.Handler())

	sessions := router.Group("/sessions")
	sessions.POST("", s.openSession)
	sessions.DELETE("/:id", s.closeSession)
	sessions.PUT("/:id/image", s.setImage)
	sessions.DELETE("/:id/image", s.releaseImage)
	sessions.PUT("/:id/rectangle", s.setRectangle)
	sessions.POST("/:id/recognize", s.recognize)
	sessions.POST("/:id/recognize-image", s.recognizeImage)
	sessions.GET("/:id/confidence", s.meanConfidence)
	sessions.GET("/:id/word-confidences", s.wordConfidences)
	sessions.PUT("/:id/variables/:name", s.setVariable)
	sessions.PUT("/:id/psm", s.setPSM)
	sessions.PUT("/:id/preset/:name", s.applyPreset)
	sessions.POST("/:id/clear", s.clearResults)
	sessions.POST("/:id/clear-adaptive", s.clearAdaptive)
	return router
}

func (s *Service) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		failures.Add(1)
		s.log.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// readBody reads the request body, limited to the maximum image size.
func (s *Service) readBody(c *gin.Context) ([]byte, error) {
	if s.conf.MaxImageSizeBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(s.conf.MaxImageSizeBytes))
	}
	return io.ReadAll(c.Request.Body)
}

// rawParams returns the pixel layout of raw uploads, nil for encoded images.
func rawParams(c *gin.Context) (*imageload.RawParams, error) {
	if !strings.HasPrefix(c.ContentType(), imageload.RawMime) {
		return nil, nil
	}
	var raw imageload.RawParams
	if err := c.ShouldBindQuery(&raw); err != nil {
		return nil, err
	}
	if err := validate.Struct(raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// loadImage turns the request body into an image. The caller must release it.
func (s *Service) loadImage(c *gin.Context) (tesswrap.Image, error) {
	raw, err := rawParams(c)
	if err != nil {
		return tesswrap.Image{}, badRequest(err)
	}
	data, err := s.readBody(c)
	if err != nil {
		return tesswrap.Image{}, err
	}
	return s.loader.Load(data, raw)
}

func (s *Service) recognizeBody(c *gin.Context) {
	raw, err := rawParams(c)
	if err != nil {
		s.fail(c, badRequest(err))
		return
	}
	psm, err := parsePSM(c.Query("psm"), s.adapter.PageSegMode)
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := s.readBody(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	res, cached, err := s.recognizeOnce(c.Request.Context(), data, c.Query("lang"), psm, raw)
	if err != nil {
		s.fail(c, err)
		return
	}
	if cached {
		c.Header("X-Cache", "hit")
	} else {
		c.Header("X-Cache", "miss")
	}
	c.JSON(http.StatusOK, res)
}

func (s *Service) listLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, s.Languages().Entries())
}

func (s *Service) shardCount(c *gin.Context) {
	lang := c.Param("lang")
	n := s.Languages().ShardCount(lang)
	if n == 0 {
		s.fail(c, ocr.ErrLanguageNotInstalled)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lang": lang, "shards": n})
}

func (s *Service) openSession(c *gin.Context) {
	var params OpenParams
	if err := c.ShouldBind(&params); err != nil && err != io.EOF {
		s.fail(c, badRequest(err))
		return
	}
	if err := validate.Struct(params); err != nil {
		s.fail(c, badRequest(err))
		return
	}
	if params.Lang == "" {
		params.Lang = s.conf.DefaultLang
	}
	vars, ok := s.presets[params.Preset]
	if params.Preset != "" && !ok {
		s.fail(c, errUnknownPreset)
		return
	}
	id, err := s.sessions.Open(params.Lang)
	if err != nil {
		s.fail(c, err)
		return
	}
	err = s.sessions.Do(id, func(a *ocr.Adapter) error {
		if params.PSM != nil {
			if err := a.SetPageSegmentationMode(tesswrap.PageSegMode(*params.PSM)); err != nil {
				return err
			}
		}
		return a.SetVariables(vars)
	})
	if err != nil {
		s.sessions.Close(id)
		s.fail(c, err)
		return
	}
	sessionsOpened.Add(1)
	c.JSON(http.StatusCreated, gin.H{"id": id, "lang": params.Lang})
}

func (s *Service) closeSession(c *gin.Context) {
	if err := s.sessions.Close(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// do runs fn on the session named in the path and replies 204 on success.
func (s *Service) do(c *gin.Context, fn func(a *ocr.Adapter) error) {
	if err := s.sessions.Do(c.Param("id"), fn); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) setImage(c *gin.Context) {
	img, err := s.loadImage(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	lent := false
	s.do(c, func(a *ocr.Adapter) error {
		if err := a.SetImage(img); err != nil {
			return err
		}
		lent = true
		return nil
	})
	if !lent {
		img.Release()
	}
}

func (s *Service) releaseImage(c *gin.Context) {
	s.do(c, func(a *ocr.Adapter) error {
		a.ReleaseImage()
		return nil
	})
}

func (s *Service) setRectangle(c *gin.Context) {
	var r RectParams
	if err := c.ShouldBindJSON(&r); err != nil {
		s.fail(c, badRequest(err))
		return
	}
	if err := validate.Struct(r); err != nil {
		s.fail(c, badRequest(err))
		return
	}
	s.do(c, func(a *ocr.Adapter) error {
		return a.SetRectangle(r.Left, r.Top, r.Width, r.Height)
	})
}

func (s *Service) recognize(c *gin.Context) {
	var res *ocr.Result
	err := s.sessions.Do(c.Param("id"), func(a *ocr.Adapter) error {
		if _, err := a.Recognize(); err != nil {
			return err
		}
		var err error
		res, err = a.Result()
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	recognitions.Add(1)
	c.JSON(http.StatusOK, res)
}

func (s *Service) recognizeImage(c *gin.Context) {
	img, err := s.loadImage(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var res *ocr.Result
	lent := false
	err = s.sessions.Do(c.Param("id"), func(a *ocr.Adapter) error {
		if _, err := a.RecognizeImage(img); err != nil {
			return err
		}
		lent = true
		var err error
		res, err = a.Result()
		return err
	})
	if err != nil {
		if !lent {
			img.Release()
		}
		s.fail(c, err)
		return
	}
	recognitions.Add(1)
	c.JSON(http.StatusOK, res)
}

func (s *Service) meanConfidence(c *gin.Context) {
	var conf int
	err := s.sessions.Do(c.Param("id"), func(a *ocr.Adapter) error {
		var err error
		conf, err = a.MeanConfidence()
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meanConfidence": conf})
}

func (s *Service) wordConfidences(c *gin.Context) {
	var confs []int
	err := s.sessions.Do(c.Param("id"), func(a *ocr.Adapter) error {
		var err error
		confs, err = a.WordConfidences()
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wordConfidences": confs})
}

func (s *Service) setVariable(c *gin.Context) {
	value, err := s.readBody(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.do(c, func(a *ocr.Adapter) error {
		return a.SetVariable(c.Param("name"), strings.TrimSpace(string(value)))
	})
}

func (s *Service) setPSM(c *gin.Context) {
	var p PSMParams
	if err := c.ShouldBindJSON(&p); err != nil {
		s.fail(c, badRequest(err))
		return
	}
	if err := validate.Struct(p); err != nil {
		s.fail(c, badRequest(err))
		return
	}
	s.do(c, func(a *ocr.Adapter) error {
		return a.SetPageSegmentationMode(tesswrap.PageSegMode(p.PSM))
	})
}

func (s *Service) applyPreset(c *gin.Context) {
	vars, ok := s.presets[c.Param("name")]
	if !ok {
		s.fail(c, errUnknownPreset)
		return
	}
	s.do(c, func(a *ocr.Adapter) error {
		return a.SetVariables(vars)
	})
}

func (s *Service) clearResults(c *gin.Context) {
	s.do(c, (*ocr.Adapter).ClearResults)
}

func (s *Service) clearAdaptive(c *gin.Context) {
	s.do(c, (*ocr.Adapter).ClearAdaptiveState)
}
