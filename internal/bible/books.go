package bible

import "regexp"

// BookInfo describes one canonical book: its full Korean name and chapter count.
type BookInfo struct {
	Name     string
	Chapters int
}

// Books lists all 66 books in canonical order with their chapter counts.
var Books = []BookInfo{
	// 구약
	{"창세기", 50}, {"출애굽기", 40}, {"레위기", 27}, {"민수기", 36}, {"신명기", 34},
	{"여호수아", 24}, {"사사기", 21}, {"룻기", 4}, {"사무엘상", 31}, {"사무엘하", 24},
	{"열왕기상", 22}, {"열왕기하", 25}, {"역대상", 29}, {"역대하", 36}, {"에스라", 10},
	{"느헤미야", 13}, {"에스더", 10}, {"욥기", 42}, {"시편", 150}, {"잠언", 31},
	{"전도서", 12}, {"아가", 8}, {"이사야", 66}, {"예레미야", 52}, {"예레미야애가", 5},
	{"에스겔", 48}, {"다니엘", 12}, {"호세아", 14}, {"요엘", 3}, {"아모스", 9},
	{"오바댜", 1}, {"요나", 4}, {"미가", 7}, {"나훔", 3}, {"하박국", 3},
	{"스바냐", 3}, {"학개", 2}, {"스가랴", 14}, {"말라기", 4},
	// 신약
	{"마태복음", 28}, {"마가복음", 16}, {"누가복음", 24}, {"요한복음", 21}, {"사도행전", 28},
	{"로마서", 16}, {"고린도전서", 16}, {"고린도후서", 13}, {"갈라디아서", 6}, {"에베소서", 6},
	{"빌립보서", 4}, {"골로새서", 4}, {"데살로니가전서", 5}, {"데살로니가후서", 3}, {"디모데전서", 6},
	{"디모데후서", 4}, {"디도서", 3}, {"빌레몬서", 1}, {"히브리서", 13}, {"야고보서", 5},
	{"베드로전서", 5}, {"베드로후서", 3}, {"요한1서", 5}, {"요한2서", 1}, {"요한3서", 1},
	{"유다서", 1}, {"요한계시록", 22},
}

// Abbreviations maps the traditional Korean book abbreviations to full names.
var Abbreviations = map[string]string{
	"창": "창세기", "출": "출애굽기", "레": "레위기", "민": "민수기", "신": "신명기",
	"수": "여호수아", "삿": "사사기", "룻": "룻기", "삼상": "사무엘상", "삼하": "사무엘하",
	"왕상": "열왕기상", "왕하": "열왕기하", "대상": "역대상", "대하": "역대하", "스": "에스라",
	"느": "느헤미야", "에": "에스더", "욥": "욥기", "시": "시편", "잠": "잠언",
	"전": "전도서", "아": "아가", "사": "이사야", "렘": "예레미야", "애": "예레미야애가",
	"겔": "에스겔", "단": "다니엘", "호": "호세아", "욜": "요엘", "암": "아모스",
	"옵": "오바댜", "욘": "요나", "미": "미가", "나": "나훔", "합": "하박국",
	"습": "스바냐", "학": "학개", "슥": "스가랴", "말": "말라기",
	"마": "마태복음", "막": "마가복음", "눅": "누가복음", "요": "요한복음", "행": "사도행전",
	"롬": "로마서", "고전": "고린도전서", "고후": "고린도후서", "갈": "갈라디아서", "엡": "에베소서",
	"빌": "빌립보서", "골": "골로새서", "살전": "데살로니가전서", "살후": "데살로니가후서",
	"딤전": "디모데전서", "딤후": "디모데후서", "딛": "디도서", "몬": "빌레몬서",
	"히": "히브리서", "약": "야고보서", "벧전": "베드로전서", "벧후": "베드로후서",
	"요일": "요한1서", "요이": "요한2서", "요삼": "요한3서", "유": "유다서", "계": "요한계시록",
}

// BookIndex returns the canonical position of book in [Books], or -1 when the
// name is not a canonical book. Used for leaderboard ordering.
func BookIndex(name string) int {
	for i, b := range Books {
		if b.Name == name {
			return i
		}
	}
	return -1
}

var abbrevRef = regexp.MustCompile(`^([가-힣]+)(\d+):(\d+)$`)

// ExpandAbbrev converts an abbreviated reference like "창4:17" into the long
// form "창세기 4장 17절". Strings that do not match the abbreviated pattern
// are returned unchanged.
func ExpandAbbrev(ref string) string {
	m := abbrevRef.FindStringSubmatch(ref)
	if m == nil {
		return ref
	}
	name := m[1]
	if full, ok := Abbreviations[name]; ok {
		name = full
	}
	return name + " " + m[2] + "장 " + m[3] + "절"
}

// SuggestNext returns the (book, chapter) a reader should continue from,
// given their bookmark. When the bookmark sits on the last canonical verse of
// a chapter the suggestion rolls over to the next chapter, and past the last
// chapter of a book to the next canonical book that has loaded text. With no
// bookmark, the first book with data is suggested at chapter 1.
func SuggestNext(src Source, lastBook string, lastChapter, lastVerse int) (string, int) {
	if lastBook == "" || lastChapter < 1 {
		return firstBookWithData(src), 1
	}

	idx := BookIndex(lastBook)
	if idx == -1 {
		return firstBookWithData(src), 1
	}

	book, chapter := lastBook, lastChapter
	nums := src.ChapterVerseNumbers(book, chapter)
	if len(nums) > 0 && lastVerse >= nums[len(nums)-1] {
		chapter++
	}
	if chapter > Books[idx].Chapters {
		for i := idx + 1; i < len(Books); i++ {
			if src.HasBook(Books[i].Name) {
				return Books[i].Name, 1
			}
		}
		// No subsequent book has data; stay on the last chapter of this one.
		return book, Books[idx].Chapters
	}
	return book, chapter
}

func firstBookWithData(src Source) string {
	for _, b := range Books {
		if src.HasBook(b.Name) {
			return b.Name
		}
	}
	return Books[0].Name
}
