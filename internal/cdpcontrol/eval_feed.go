package cdpcontrol

import (
	"encoding/json"
	"fmt"
)

// jsContainerPreamble resolves the configured scroll container, falling back
// to the document's own scrolling element. Selector knowledge stays here;
// the engine never sees CSS.
func jsContainerPreamble(selector string) string {
	return fmt.Sprintf(`
var container = document.querySelector(%s);
if (!container) { container = document.scrollingElement || document.documentElement; }`,
		jsString(selector))
}

func jsSnapshot() string {
	return wrapJSEval(`
var markup = document.documentElement ? document.documentElement.outerHTML : "";
if (!markup) {
  return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:"document has no root element"});
}
return JSON.stringify({ok:true,data:{markup:markup}});`)
}

func jsScrollContainerTo(selector string, offset int) string {
	return wrapJSEval(jsContainerPreamble(selector) + fmt.Sprintf(`
container.scrollTop = %d;
return JSON.stringify({ok:true,data:{offset:Math.round(container.scrollTop)}});`, offset))
}

func jsContainerExtent(selector string) string {
	return wrapJSEval(jsContainerPreamble(selector) + `
return JSON.stringify({ok:true,data:{offset:Math.round(container.scrollTop),total_height:Math.round(container.scrollHeight)}});`)
}

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string { return buildIIFE(false, body) }
