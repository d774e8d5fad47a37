package psychology_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marketlens/marketlens/pkg/psychology"
)

func TestPsychology(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Psychology Suite")
}

var _ = Describe("DetectType", func() {
	It("classifies a 1-to-5 scale marker as likert", func() {
		Expect(psychology.DetectType("請以 1 到 5 分評分你面對虧損時的焦慮程度")).To(Equal(psychology.TypeLikert))
		Expect(psychology.DetectType("How anxious are you on a 1-5 scale?")).To(Equal(psychology.TypeLikert))
	})

	It("classifies slash-separated chunks as single-choice", func() {
		Expect(psychology.DetectType("當市場大跌時你會怎麼做？ 加碼買入 / 觀望等待 / 立刻賣出")).To(Equal(psychology.TypeChoice))
	})

	It("falls back to open for plain prose", func() {
		Expect(psychology.DetectType("請描述你最近一次的投資決策過程")).To(Equal(psychology.TypeOpen))
	})

	It("treats empty text as open", func() {
		Expect(psychology.DetectType("   ")).To(Equal(psychology.TypeOpen))
	})

	It("does not classify a wall of fragments as single-choice", func() {
		Expect(psychology.DetectType("a、b、c、d、e、f、g、h、i、j、k、l")).To(Equal(psychology.TypeOpen))
	})
})

var _ = Describe("ExtractOptions", func() {
	It("extracts slash-separated options and drops the question sentence", func() {
		opts := psychology.ExtractOptions("當市場大跌時你會怎麼做？ 加碼買入 / 觀望等待 / 立刻賣出")
		Expect(opts).To(Equal([]string{"加碼買入", "觀望等待", "立刻賣出"}))
	})

	It("strips enumeration prefixes from lettered options", func() {
		opts := psychology.ExtractOptions("你偏好哪種策略？\nA. 長期持有\nB. 短線交易")
		Expect(opts).To(Equal([]string{"長期持有", "短線交易"}))
	})

	It("returns nil when fewer than two options resolve", func() {
		Expect(psychology.ExtractOptions("只有一個想法")).To(BeNil())
		Expect(psychology.ExtractOptions("")).To(BeNil())
	})

	It("trims surrounding quotes", func() {
		opts := psychology.ExtractOptions(`"買入" / "賣出"`)
		Expect(opts).To(Equal([]string{"買入", "賣出"}))
	})
})

var _ = Describe("Normalize", func() {
	It("trusts declared metadata over text heuristics", func() {
		meta := &psychology.Meta{Type: "open"}
		q := psychology.Normalize("加碼 / 觀望 / 賣出", meta)
		Expect(q.Type).To(Equal(psychology.TypeOpen))
		Expect(q.Options).To(BeEmpty())
	})

	It("accepts single-choice aliases in metadata", func() {
		for _, alias := range []string{"mc", "single", "single-choice"} {
			meta := &psychology.Meta{Type: alias, Options: []string{"買入", "賣出"}}
			q := psychology.Normalize("你會怎麼做？", meta)
			Expect(q.Type).To(Equal(psychology.TypeChoice))
			Expect(q.Options).To(Equal([]string{"買入", "賣出"}))
		}
	})

	It("infers single-choice from an options list without a declared type", func() {
		meta := &psychology.Meta{Options: []string{"長期持有", "短線交易"}}
		q := psychology.Normalize("你偏好哪種策略？", meta)
		Expect(q.Type).To(Equal(psychology.TypeChoice))
	})

	It("infers likert from a likert option list", func() {
		meta := &psychology.Meta{LikertOptions: []string{"從不", "偶爾", "有時", "經常", "總是"}, LikertRange: "1-5"}
		q := psychology.Normalize("你多常檢查投資組合", meta)
		Expect(q.Type).To(Equal(psychology.TypeLikert))
		Expect(q.LikertRange).To(Equal("1-5"))
	})

	It("falls back to heuristics without metadata", func() {
		q := psychology.Normalize("當市場大跌時你會怎麼做？ 加碼買入 / 觀望等待 / 立刻賣出", nil)
		Expect(q.Type).To(Equal(psychology.TypeChoice))
		Expect(q.Options).To(HaveLen(3))
	})
})

var _ = Describe("DeriveLikertDescriptor", func() {
	It("uses stress phrasing for anxiety questions", func() {
		Expect(psychology.DeriveLikertDescriptor("面對市場波動你會感到擔心嗎", 4)).To(Equal("經常感到壓力"))
		Expect(psychology.DeriveLikertDescriptor("虧損時你的壓力程度", 1)).To(Equal("不會感到壓力"))
	})

	It("annotates risk questions with an appetite label", func() {
		Expect(psychology.DeriveLikertDescriptor("你對高風險投資的接受度", 5)).To(Equal("非常常（非常冒險）"))
		Expect(psychology.DeriveLikertDescriptor("你對高風險投資的接受度", 1)).To(Equal("從不（非常保守）"))
	})

	It("annotates agreement questions", func() {
		Expect(psychology.DeriveLikertDescriptor("你同意長期投資優於短線嗎", 1)).To(Equal("從不（非常不認同）"))
	})

	It("falls back to the frequency label", func() {
		Expect(psychology.DeriveLikertDescriptor("你多常檢查投資組合", 3)).To(Equal("有時"))
	})

	It("clamps out-of-range values", func() {
		Expect(psychology.DeriveLikertDescriptor("你多常檢查投資組合", 0)).To(Equal("從不"))
		Expect(psychology.DeriveLikertDescriptor("你多常檢查投資組合", 9)).To(Equal("非常常"))
	})
})

var _ = Describe("CheckIncomplete", func() {
	cfg := psychology.DefaultDetectionConfig()

	It("flags empty questions", func() {
		reason, flagged := psychology.CheckIncomplete(psychology.Question{Text: "  "}, cfg)
		Expect(flagged).To(BeTrue())
		Expect(reason).To(Equal("題目為空"))
	})

	It("flags a single-choice question with fewer than two options", func() {
		q := psychology.Question{Text: "你會怎麼做？只有一個選項", Type: psychology.TypeChoice, Options: []string{"唯一"}}
		reason, flagged := psychology.CheckIncomplete(q, cfg)
		Expect(flagged).To(BeTrue())
		Expect(reason).To(Equal("選項不足"))
	})

	It("flags questions shorter than the minimum length", func() {
		reason, flagged := psychology.CheckIncomplete(psychology.Question{Text: "你好嗎？", Type: psychology.TypeOpen}, cfg)
		Expect(flagged).To(BeTrue())
		Expect(reason).To(Equal("題目過短"))
	})

	It("flags leftover placeholder tokens", func() {
		q := psychology.Question{Text: "請選擇你偏好的 選項 A 或 選項 B", Type: psychology.TypeOpen}
		reason, flagged := psychology.CheckIncomplete(q, cfg)
		Expect(flagged).To(BeTrue())
		Expect(reason).To(Equal("題目包含占位符"))
	})

	It("flags a trailing ellipsis as truncation", func() {
		q := psychology.Question{Text: "當市場突然大幅下跌時你會…", Type: psychology.TypeOpen}
		reason, flagged := psychology.CheckIncomplete(q, cfg)
		Expect(flagged).To(BeTrue())
		Expect(reason).To(Equal("題目似乎被截斷"))

		q = psychology.Question{Text: "當市場突然大幅下跌時你會...  ", Type: psychology.TypeOpen}
		_, flagged = psychology.CheckIncomplete(q, cfg)
		Expect(flagged).To(BeTrue())
	})

	It("ignores an ellipsis in the middle of the text", func() {
		q := psychology.Question{Text: "市場傳出「可能升息…也可能不會」時，你會如何調整持股？", Type: psychology.TypeOpen}
		_, flagged := psychology.CheckIncomplete(q, cfg)
		Expect(flagged).To(BeFalse())
	})

	It("passes a complete question", func() {
		q := psychology.Question{Text: "請描述你最近一次的投資決策過程", Type: psychology.TypeOpen}
		reason, flagged := psychology.CheckIncomplete(q, cfg)
		Expect(flagged).To(BeFalse())
		Expect(reason).To(BeEmpty())
	})

	It("honors a custom minimum length", func() {
		tight := psychology.DetectionConfig{MinLength: 30}
		_, flagged := psychology.CheckIncomplete(psychology.Question{Text: "請描述你最近一次的投資決策過程", Type: psychology.TypeOpen}, tight)
		Expect(flagged).To(BeTrue())
	})
})
