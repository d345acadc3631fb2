package native

import "time"

// start anchors nanoTime, which Java only defines relative to itself.
var start = time.Now()

func init() {
	register("java/lang/System", map[string]Func{
		"currentTimeMillis()J": nullary(i64, func() int64 { return time.Now().UnixMilli() }),
		"nanoTime()J":          nullary(i64, func() int64 { return int64(time.Since(start)) }),
	})
}
