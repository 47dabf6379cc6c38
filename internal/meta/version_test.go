package meta_test

import (
	"runtime"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ondemand/internal/meta"
)

var _ = Describe("meta / Info", func() {
	It("describes the running toolchain", func() {
		info := meta.GetInfo()
		Expect(info.GoVersion).To(Equal(runtime.Version()))
		Expect(info.Platform).To(ContainSubstring(runtime.GOOS))
	})

	It("includes the build and branch when stamped", func() {
		info := meta.Info{Version: "1.2.0", Build: "abc123", Branch: "main", GoVersion: "go1.23", Platform: "linux amd64"}
		Expect(info.String()).To(Equal("ondemand 1.2.0 (abc123@main) go1.23 linux amd64"))
	})

	It("leaves out what was not stamped", func() {
		info := meta.Info{Version: "dev", GoVersion: "go1.23", Platform: "linux amd64"}
		Expect(info.String()).To(Equal("ondemand dev go1.23 linux amd64"))
	})
})
