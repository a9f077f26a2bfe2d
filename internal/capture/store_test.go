package capture

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zzjbattlefield/smart-ledger-web/internal/ledger"
)

var _ = Describe("Store", func() {
	var store *Store

	ids := func() []string {
		var out []string
		for _, item := range store.Items() {
			out = append(out, item.ID)
		}
		return out
	}

	BeforeEach(func() {
		store = NewStore()
	})

	Describe("Add", func() {
		It("appends in order and activates the first new item", func() {
			store.Add(Item{ID: "a"}, Item{ID: "b"})
			Expect(ids()).To(Equal([]string{"a", "b"}))
			Expect(store.Active()).To(Equal("a"))
		})

		It("keeps the current selection", func() {
			store.Add(Item{ID: "a"})
			store.Add(Item{ID: "b"})
			Expect(store.Active()).To(Equal("a"))
		})
	})

	Describe("Remove", func() {
		BeforeEach(func() {
			store.Add(Item{ID: "a"}, Item{ID: "b"}, Item{ID: "c"})
		})

		It("activates the first remaining item when the active one goes", func() {
			store.SetActive("b")
			store.Remove("b")
			Expect(ids()).To(Equal([]string{"a", "c"}))
			Expect(store.Active()).To(Equal("a"))
		})

		It("keeps the selection when another item goes", func() {
			store.SetActive("c")
			store.Remove("a")
			Expect(store.Active()).To(Equal("c"))
		})

		It("leaves nothing active once the queue is empty", func() {
			store.Remove("a")
			store.Remove("b")
			store.Remove("c")
			Expect(store.Len()).To(BeZero())
			Expect(store.Active()).To(BeEmpty())
		})
	})

	Describe("unknown ids", func() {
		It("are ignored by every operation", func() {
			store.Add(Item{ID: "a", Status: StatusWaiting})
			amount := "3"
			store.Remove("x")
			store.SetActive("x")
			store.UpdateStatus("x", StatusError)
			store.UpdateForm("x", FormPatch{Amount: &amount})
			store.AttachResult("x", &ledger.Recognition{})
			store.AttachServerID("x", 4)
			Expect(store.Items()).To(Equal([]Item{{ID: "a", Status: StatusWaiting}}))
			Expect(store.Active()).To(Equal("a"))
		})
	})

	Describe("AttachServerID", func() {
		It("sets the id only once", func() {
			store.Add(Item{ID: "a"})
			store.AttachServerID("a", 7)
			store.AttachServerID("a", 8)
			item, ok := store.Get("a")
			Expect(ok).To(BeTrue())
			Expect(item.ServerID).To(Equal(int64(7)))
		})
	})

	Describe("Items", func() {
		It("returns copies", func() {
			store.Add(Item{ID: "a", Status: StatusWaiting})
			items := store.Items()
			items[0].Status = StatusError
			item, _ := store.Get("a")
			Expect(item.Status).To(Equal(StatusWaiting))
		})
	})
})
