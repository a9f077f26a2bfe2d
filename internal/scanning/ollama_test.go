package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		pngData []byte
		sent    ollamaChatRequest
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		scanner, err = NewOllama(server.URL()+"/", "", 0)
		Expect(err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		Expect(png.Encode(&buf, testImage())).To(Succeed())
		pngData = buf.Bytes()
	})

	AfterEach(func() {
		server.Close()
	})

	capture := func(w http.ResponseWriter, r *http.Request) {
		defer GinkgoRecover()
		body, err := io.ReadAll(r.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, &sent)).To(Succeed())
	}

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				capture,
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{"role": "assistant", "content": `{"merchant": "Noodle House", "amount": 32, "bill_type": 1}`},
					"done":    true,
				}),
			))
		})

		It("returns the parsed receipt", func() {
			data, err := scanner.ScanReceipt(context.Background(), pngData, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Merchant).To(Equal("Noodle House"))
			Expect(data.Amount).To(Equal(32.0))
		})

		It("asks the default model for JSON with the image attached", func() {
			_, err := scanner.ScanReceipt(context.Background(), pngData, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(sent.Model).To(Equal("qwen2.5vl"))
			Expect(sent.Format).To(Equal("json"))
			Expect(sent.Stream).To(BeFalse())
			Expect(sent.Messages).To(HaveLen(2))
			Expect(sent.Messages[1].Images).To(HaveLen(1))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("reports the status and body", func() {
			_, err := scanner.ScanReceipt(context.Background(), pngData, "image/png")
			Expect(err).To(MatchError(And(ContainSubstring("status 500"), ContainSubstring("model not loaded"))))
		})
	})

	When("the answer has no amount", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]any{"role": "assistant", "content": `{"merchant": "Noodle House"}`},
				"done":    true,
			}))
		})

		It("returns a parse error", func() {
			_, err := scanner.ScanReceipt(context.Background(), pngData, "image/png")
			Expect(err).To(MatchError(ContainSubstring("parsing receipt data")))
		})
	})
})
