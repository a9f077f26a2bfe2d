package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("AutoSubmit", func() {
		When("the mode was never set", func() {
			It("should default to automatic", func() {
				enabled, err := db.AutoSubmit()
				Expect(err).NotTo(HaveOccurred())
				Expect(enabled).To(BeTrue())
			})
		})

		When("the mode was switched to manual", func() {
			BeforeEach(func() {
				Expect(db.SetAutoSubmit(false)).To(Succeed())
			})

			It("should return manual", func() {
				enabled, err := db.AutoSubmit()
				Expect(err).NotTo(HaveOccurred())
				Expect(enabled).To(BeFalse())
			})

			It("should survive a reopen", func() {
				Expect(db.Close()).To(Succeed())
				var err error
				db, err = NewBoltDB(dbPath)
				Expect(err).NotTo(HaveOccurred())

				enabled, err := db.AutoSubmit()
				Expect(err).NotTo(HaveOccurred())
				Expect(enabled).To(BeFalse())
			})

			It("should switch back to automatic", func() {
				Expect(db.SetAutoSubmit(true)).To(Succeed())
				enabled, err := db.AutoSubmit()
				Expect(err).NotTo(HaveOccurred())
				Expect(enabled).To(BeTrue())
			})
		})

		When("the stored value is corrupt", func() {
			BeforeEach(func() {
				err := db.db.Update(func(tx *bbolt.Tx) error {
					return tx.Bucket([]byte(preferencesBucket)).Put([]byte(autoSubmitKey), []byte("maybe"))
				})
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error and automatic", func() {
				enabled, err := db.AutoSubmit()
				Expect(err).To(MatchError(ContainSubstring("parsing auto_submit")))
				Expect(enabled).To(BeTrue())
			})
		})
	})

	Describe("uploads", func() {
		var createdAt time.Time

		BeforeEach(func() {
			createdAt = time.Date(2025, 12, 9, 8, 15, 0, 0, time.UTC)
			Expect(db.SaveUpload(&Upload{
				ItemID:      "item-1",
				Filename:    "收据.jpg",
				ContentType: "image/jpeg",
				Size:        1024,
				BlobRef:     "u1_收据.jpg",
				PreviewRef:  "u1_preview.png",
				CreatedAt:   createdAt,
			})).To(Succeed())
			Expect(db.SaveUpload(&Upload{
				ItemID:      "item-2",
				Filename:    "scan.pdf",
				ContentType: "application/pdf",
				BlobRef:     "u2_scan.pdf",
				CreatedAt:   createdAt,
			})).To(Succeed())
		})

		It("should list every saved upload", func() {
			uploads, err := db.ListUploads()
			Expect(err).NotTo(HaveOccurred())
			Expect(uploads).To(HaveLen(2))

			byID := map[string]*Upload{}
			for _, u := range uploads {
				byID[u.ItemID] = u
			}
			Expect(byID["item-1"].Filename).To(Equal("收据.jpg"))
			Expect(byID["item-1"].PreviewRef).To(Equal("u1_preview.png"))
			Expect(byID["item-1"].CreatedAt.Equal(createdAt)).To(BeTrue())
			Expect(byID["item-2"].PreviewRef).To(BeEmpty())
		})

		It("should overwrite a record with the same item id", func() {
			Expect(db.SaveUpload(&Upload{ItemID: "item-1", Filename: "retake.jpg"})).To(Succeed())
			uploads, err := db.ListUploads()
			Expect(err).NotTo(HaveOccurred())
			Expect(uploads).To(HaveLen(2))
		})

		It("should delete a record", func() {
			Expect(db.DeleteUpload("item-1")).To(Succeed())
			uploads, err := db.ListUploads()
			Expect(err).NotTo(HaveOccurred())
			Expect(uploads).To(HaveLen(1))
			Expect(uploads[0].ItemID).To(Equal("item-2"))
		})

		It("should tolerate deleting a missing record", func() {
			Expect(db.DeleteUpload("nope")).To(Succeed())
		})
	})

	Describe("an empty database", func() {
		It("should list no uploads", func() {
			uploads, err := db.ListUploads()
			Expect(err).NotTo(HaveOccurred())
			Expect(uploads).To(BeEmpty())
		})
	})
})
