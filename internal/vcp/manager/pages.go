package manager

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jimyag/vcp/pkg/apierror"
)

// 内存页大小为 4KiB，预算换算统一以页为单位
const pageShift = 12

// 数字加可选单位后缀，无后缀按字节处理
var memoryStringPattern = regexp.MustCompile(`^(\d+)(b|kb|mb|gb|tb)?$`)

// 单位到字节的位移量
var memoryUnitShift = map[string]uint{
	"":   0,
	"b":  0,
	"kb": 10,
	"mb": 20,
	"gb": 30,
	"tb": 40,
}

// memoryStringToPages 把内存预算字符串换算为页数
// 大小写不敏感，至少返回 1 页，无法解析返回参数错误
func memoryStringToPages(mem string) (uint64, error) {
	matches := memoryStringPattern.FindStringSubmatch(strings.ToLower(mem))
	if matches == nil {
		return 0, apierror.WrapError(apierror.ErrInvalidParameterValue,
			"invalid target string "+mem, nil)
	}

	val, err := strconv.ParseUint(matches[1], 10, 64)
	if err != nil {
		return 0, apierror.WrapError(apierror.ErrInvalidParameterValue,
			"invalid target string "+mem, err)
	}

	shift := memoryUnitShift[matches[2]]
	if shift > 0 && val > math.MaxUint64>>shift {
		return 0, apierror.WrapError(apierror.ErrInvalidParameterValue,
			"target string "+mem+" overflows", nil)
	}
	bytes := val << shift

	pages := bytes >> pageShift
	if pages == 0 {
		pages = 1
	}
	return pages, nil
}
