package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zzjbattlefield/smart-ledger-web/internal/capture"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		recognizer  *stubRecognizer
		persister   *stubPersister
		engine      *capture.Engine
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	doJSON := func(method, path, body string) *http.Response {
		return do(method, path, strings.NewReader(body), "application/json")
	}

	decode := func(resp *http.Response, v any) {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed(), string(body))
	}

	multipartBody := func(names ...string) (*bytes.Buffer, string) {
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		for _, name := range names {
			part, err := writer.CreateFormFile("file", name)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake image data " + name))
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(writer.Close()).To(Succeed())
		return &b, writer.FormDataContentType()
	}

	queue := func() capture.Snapshot {
		var snap capture.Snapshot
		decode(do(http.MethodGet, "/api/queue", nil, ""), &snap)
		return snap
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		recognizer = &stubRecognizer{hold: true}
		persister = &stubPersister{}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		engine = startEngine(recognizer, persister, NewPreferences(db))
		service = NewServiceWithDeps(engine, db, storage, func(data []byte, contentType string) ([]byte, error) {
			return []byte("png"), nil
		}, &sequenceGenerator{}, systemClock{})
		server = NewServerWithMux(service, auth, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
		DeferCleanup(ghttpServer.Close)
	})

	Describe("GET /api/queue", func() {
		It("should return an empty queue", func() {
			resp := do(http.MethodGet, "/api/queue", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			var snap capture.Snapshot
			decode(resp, &snap)
			Expect(snap.Items).To(BeEmpty())
			Expect(snap.NavigateAway).To(BeFalse())
		})
	})

	Describe("POST /api/queue/files", func() {
		When("files are uploaded", func() {
			It("should queue them and infer their types", func() {
				body, contentType := multipartBody("lunch.jpg", "IMG_0001.HEIC")
				resp := do(http.MethodPost, "/api/queue/files", body, contentType)
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var items []capture.Item
				decode(resp, &items)
				Expect(items).To(HaveLen(2))
				Expect(items[0].Source.ContentType).To(Equal("image/jpeg"))
				Expect(items[1].Source.ContentType).To(Equal("image/heic"))
				Expect(queue().Items).To(HaveLen(2))
			})
		})

		When("no file field is sent", func() {
			It("should return Bad Request", func() {
				body, contentType := multipartBody()
				resp := do(http.MethodPost, "/api/queue/files", body, contentType)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the body is not a multipart form", func() {
			It("should return Bad Request", func() {
				resp := do(http.MethodPost, "/api/queue/files", strings.NewReader("invalid"), "multipart/form-data")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("a file is empty", func() {
			It("should return Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				_, err := writer.CreateFormFile("file", "empty.jpg")
				Expect(err).NotTo(HaveOccurred())
				Expect(writer.Close()).To(Succeed())

				resp := do(http.MethodPost, "/api/queue/files", &b, writer.FormDataContentType())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("empty file"))
			})
		})
	})

	Describe("manual entries", func() {
		var manual capture.Item

		JustBeforeEach(func() {
			resp := do(http.MethodPost, "/api/queue/manual", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			decode(resp, &manual)
		})

		It("should be ready for review and active", func() {
			Expect(manual.Status).To(Equal(capture.StatusReviewReady))
			Expect(queue().ActiveID).To(Equal(manual.ID))
		})

		It("should reject saving without an amount", func() {
			resp := do(http.MethodPost, "/api/queue/"+manual.ID+"/save", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})

		It("should save after the form is filled in", func() {
			resp := doJSON(http.MethodPatch, "/api/queue/"+manual.ID+"/form", `{"amount":"18.00","merchant":"便利店"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var item capture.Item
			decode(resp, &item)
			Expect(item.Form.Amount).To(Equal("18.00"))
			Expect(item.Form.Merchant).To(Equal("便利店"))

			resp = do(http.MethodPost, "/api/queue/"+manual.ID+"/save", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			Eventually(statusOf(engine, manual.ID)).Should(Equal(capture.StatusCompleted))
			Expect(persister.Saved()).To(HaveLen(1))
			Expect(persister.Saved()[0].Platform).To(Equal("Manual"))
			Expect(queue().NavigateAway).To(BeTrue())
		})

		It("should reject an invalid bill type", func() {
			resp := doJSON(http.MethodPatch, "/api/queue/"+manual.ID+"/form", `{"bill_type":3}`)
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})

		It("should reject a malformed edit", func() {
			resp := doJSON(http.MethodPatch, "/api/queue/"+manual.ID+"/form", `{"amount":`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should not retry a manual entry", func() {
			resp := do(http.MethodPost, "/api/queue/"+manual.ID+"/retry", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("queued receipts", func() {
		var items []capture.Item

		JustBeforeEach(func() {
			var err error
			items, err = service.Upload(context.Background(), []File{
				{Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
				{Filename: "b.jpg", ContentType: "image/jpeg", Data: []byte("b")},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should refuse to save an item that is not recognized yet", func() {
			resp := do(http.MethodPost, "/api/queue/"+items[1].ID+"/save", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should change the active item", func() {
			resp := doJSON(http.MethodPut, "/api/queue/active", fmt.Sprintf(`{"id":%q}`, items[1].ID))
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(queue().ActiveID).To(Equal(items[1].ID))
		})

		It("should reject activating an unknown item", func() {
			resp := doJSON(http.MethodPut, "/api/queue/active", `{"id":"missing"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should reject an activation without an id", func() {
			resp := doJSON(http.MethodPut, "/api/queue/active", `{}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should serve the preview", func() {
			resp := do(http.MethodGet, "/api/queue/"+items[0].ID+"/preview", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("png"))
		})

		It("should remove an item", func() {
			resp := do(http.MethodDelete, "/api/queue/"+items[1].ID, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(queue().Items).To(HaveLen(1))

			resp = do(http.MethodDelete, "/api/queue/"+items[1].ID, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return Not Found for the preview of an unknown item", func() {
			resp := do(http.MethodGet, "/api/queue/missing/preview", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /api/queue/{id}/retry", func() {
		BeforeEach(func() {
			recognizer.hold = false
			recognizer.fail = true
		})

		It("should send a failed item back through recognition", func() {
			items, err := service.Upload(context.Background(), []File{{Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")}})
			Expect(err).NotTo(HaveOccurred())
			Eventually(statusOf(engine, items[0].ID)).Should(Equal(capture.StatusError))

			recognizer.setFail(false)
			resp := do(http.MethodPost, "/api/queue/"+items[0].ID+"/retry", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			Eventually(statusOf(engine, items[0].ID)).Should(Equal(capture.StatusCompleted))
		})

		It("should return Not Found for an unknown item", func() {
			resp := do(http.MethodPost, "/api/queue/missing/retry", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("/api/settings/mode", func() {
		It("should default to automatic", func() {
			resp := do(http.MethodGet, "/api/settings/mode", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body map[string]bool
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("auto_submit", true))
		})

		It("should switch to manual", func() {
			resp := doJSON(http.MethodPut, "/api/settings/mode", `{"auto_submit":false}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			enabled, err := db.AutoSubmit()
			Expect(err).NotTo(HaveOccurred())
			Expect(enabled).To(BeFalse())
		})

		It("should reject a body without the flag", func() {
			resp := doJSON(http.MethodPut, "/api/settings/mode", `{}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do(http.MethodOptions, "/api/queue/abc/form", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PATCH"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should set headers on normal responses", func() {
			resp := do(http.MethodGet, "/api/queue", nil, "")
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("authentication", func() {
		When("credentials are configured", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
			})

			It("should accept the right credentials", func() {
				resp := do(http.MethodGet, "/api/queue", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should reject a request without credentials", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/queue")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Smart Ledger"))
			})

			It("should reject the wrong password", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/queue", nil)
				Expect(err).NotTo(HaveOccurred())
				credentials := base64.StdEncoding.EncodeToString([]byte("user:wrong"))
				req.Header.Set("Authorization", "Basic "+credentials)
				Expect(server.authenticate(req)).To(BeFalse())
			})

			It("should reject a header that is not basic auth", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/queue", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Bearer token")
				Expect(server.authenticate(req)).To(BeFalse())
			})

			It("should reject credentials without a separator", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/queue", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("userpass")))
				Expect(server.authenticate(req)).To(BeFalse())
			})
		})

		When("no credentials are configured", func() {
			It("should allow every request", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/queue", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(server.authenticate(req)).To(BeTrue())
			})
		})
	})
})

var _ = DescribeTable("writeEngineError",
	func(err error, code int) {
		rec := httptest.NewRecorder()
		writeEngineError(rec, err)
		Expect(rec.Code).To(Equal(code))
		Expect(rec.Body.String()).To(ContainSubstring(`"error"`))
	},
	Entry("validation", fmt.Errorf("save: %w", capture.ErrValidationRejected), http.StatusUnprocessableEntity),
	Entry("not found", fmt.Errorf("get: %w", capture.ErrNotFound), http.StatusNotFound),
	Entry("invalid transition", capture.ErrInvalidTransition, http.StatusConflict),
	Entry("not ready", capture.ErrNotReady, http.StatusConflict),
	Entry("engine stopped", capture.ErrEngineStopped, http.StatusServiceUnavailable),
	Entry("anything else", fmt.Errorf("boom"), http.StatusInternalServerError),
)

var _ = DescribeTable("detectContentType",
	func(header, filename, want string) {
		Expect(detectContentType(header, filename)).To(Equal(want))
	},
	Entry("explicit type", "image/png", "x.jpg", "image/png"),
	Entry("octet stream jpeg", "application/octet-stream", "x.JPEG", "image/jpeg"),
	Entry("missing heif", "", "x.heif", "image/heif"),
	Entry("pdf", "", "scan.pdf", "application/pdf"),
	Entry("unknown", "", "notes.txt", "application/octet-stream"),
)
