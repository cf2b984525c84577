package selector

// Registry bundles every cascade the extractor consults.
type Registry struct {
	Container Cascade // result list in the search frame
	Item      Cascade // used only when no container matched
	Children  string  // candidates enumerated below a container
	Name      Cascade
	Phone     Cascade
	Category  Cascade
	Main      Cascade // whole-document cascade for the semi-structural tier
}

// Default returns the Naver Map cascades. Obfuscated class names (.CHC5F,
// .TYaxT, ...) rotate with every map release, so each list ends with
// generic tags.
func Default() Registry {
	return Registry{
		Container: New("container",
			`ul[role="tablist"]`,
			`.CHC5F`,
			`.place_section_content`,
			`.search_list`,
			`.place_list`,
			`[role="main"] ul`,
			`.search_listitem`,
			`.place_item`,
			`ul[role="list"]`,
			`#_list_scroll_container ul`,
			`.list_item`,
		),
		Item: New("item",
			`.CHC5F > li`,
			`.place_item`,
			`.search_item`,
			`li[data-index]`,
			`li.place_bluelink`,
			`.place_section_content li`,
			`a.place_bluelink`,
			`li`,
		),
		Children: `li, .item, .place_bluelink, a`,
		Name: New("name",
			`.place_bluelink`,
			`.TYaxT`,
			`.zPfVt`,
			`.CwP5Z`,
			`strong`,
			`.name`,
			`h3`,
			`a`,
			`.place_name`,
			`.business_name`,
		),
		Phone: New("phone",
			`.xlx7Q`,
			`.phone`,
			`.tel`,
			`.phone_number`,
			`[class*="phone"]`,
			`[class*="tel"]`,
		),
		Category: New("category",
			`.KCMnt`,
			`.category`,
			`.cate`,
		),
		Main: New("main",
			`.place_bluelink`,
			`.search_item`,
			`ul li`,
			`[data-id]`,
		),
	}
}
