package bridge

import (
	"bytes"
	"embed"
	"html/template"
	"regexp"
)

const (
	// SandboxPolicy 帧只允许执行脚本：无同源、无表单、无弹窗、无顶层导航
	SandboxPolicy = "allow-scripts"
	// LibraryURL 游戏代码依赖的绘图库
	LibraryURL = "https://cdnjs.cloudflare.com/ajax/libs/p5.js/1.11.3/p5.min.js"
)

//go:embed assets
var assets embed.FS

var (
	templates = template.Must(template.ParseFS(assets, "assets/*.html.tmpl"))

	gameBridge       = mustAsset("assets/game_bridge.js")
	controllerBridge = mustAsset("assets/controller_bridge.js")

	scriptClose = regexp.MustCompile(`(?i)</(script)`)
)

func mustAsset(name string) template.JS {
	data, err := assets.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return template.JS(data)
}

// GameScreenDocument 生成游戏画面帧的 srcdoc
func GameScreenDocument(code string) (string, error) {
	return document(gameBridge, code)
}

// ControllerScreenDocument 生成控制器帧的 srcdoc
func ControllerScreenDocument(code string) (string, error) {
	return document(controllerBridge, code)
}

func document(bridge template.JS, code string) (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "document.html.tmpl", struct {
		Bridge  template.JS
		Library string
		Code    template.JS
	}{
		Bridge:  bridge,
		Library: LibraryURL,
		// 游戏代码原样注入，只防止提前闭合 script 标签
		Code: template.JS(scriptClose.ReplaceAllString(code, `<\/$1`)),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FramePage 生成承载 srcdoc 的独立页面，iframe 带沙箱策略
func FramePage(title, srcdoc string) (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "frame.html.tmpl", struct {
		Title   string
		Sandbox string
		Srcdoc  string
	}{title, SandboxPolicy, srcdoc})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
